package concurrency

import "sync"

// ApprovalLockManager serializes per-approval processing without a global lock.
type ApprovalLockManager struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func NewApprovalLockManager() *ApprovalLockManager {
	return &ApprovalLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *ApprovalLockManager) Lock(approvalID string) {
	m.mu.Lock()
	lock, ok := m.locks[approvalID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[approvalID] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

func (m *ApprovalLockManager) Unlock(approvalID string) {
	m.mu.Lock()
	lock, ok := m.locks[approvalID]
	if ok {
		lock.Unlock()
	}
	m.mu.Unlock()
}
