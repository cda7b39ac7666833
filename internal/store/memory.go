package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/harunnryd/hanko/internal/contract"
	hankoErrors "github.com/harunnryd/hanko/internal/errors"
)

// MemoryStore is a process-local Store with the same compare-and-set
// semantics as FileStore. Used in tests and embedded setups.
type MemoryStore struct {
	contracts map[string]*contract.ApprovalContract
	mu        sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]*contract.ApprovalContract),
	}
}

func (s *MemoryStore) Put(ctx context.Context, c *contract.ApprovalContract) error {
	if c == nil || c.ApprovalID == "" {
		return hankoErrors.InvalidInput("contract must carry an approval id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ApprovalID] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, approvalID string) (*contract.ApprovalContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[approvalID]
	if !ok {
		return nil, hankoErrors.NotFound("approval " + approvalID)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) UpdateIf(ctx context.Context, approvalID string, expected contract.Decision, mutate Mutator) (*contract.ApprovalContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.contracts[approvalID]
	if !ok {
		return nil, hankoErrors.NotFound("approval " + approvalID)
	}

	if current.Decision != expected {
		return current.Clone(), fmt.Errorf("approval %s is already %s: %w",
			approvalID, current.Decision, hankoErrors.ErrAlreadyResolved)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	s.contracts[approvalID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]*contract.ApprovalContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*contract.ApprovalContract, 0)
	for _, c := range s.contracts {
		if !c.IsTerminal() {
			pending = append(pending, c.Clone())
		}
	}
	sortByRequestTime(pending)
	return pending, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*contract.ApprovalContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*contract.ApprovalContract, 0, len(s.contracts))
	for _, c := range s.contracts {
		all = append(all, c.Clone())
	}
	sortByRequestTime(all)
	return all, nil
}
