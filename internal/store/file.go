package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/harunnryd/hanko/internal/contract"
	hankoErrors "github.com/harunnryd/hanko/internal/errors"

	"github.com/natefinch/atomic"
)

// FileStore keeps all contracts in a single JSON document under basePath,
// written atomically. A flock on the directory fences other processes; the
// in-process mutex makes UpdateIf an atomic compare-and-set.
type FileStore struct {
	path      string
	contracts map[string]*contract.ApprovalContract
	fileLock  *FileLock
	mu        sync.RWMutex
}

func NewFileStore(basePath string, lockCfg *FileLockConfig) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	fl, err := NewFileLock(basePath, lockCfg)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		path:      filepath.Join(basePath, "contracts.json"),
		contracts: make(map[string]*contract.ApprovalContract),
		fileLock:  fl,
	}
	if err := s.load(); err != nil {
		fl.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.contracts)
}

// save persists the full document; lock held by caller.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.contracts, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *FileStore) Put(ctx context.Context, c *contract.ApprovalContract) error {
	if c == nil || c.ApprovalID == "" {
		return hankoErrors.InvalidInput("contract must carry an approval id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.contracts[c.ApprovalID] = c.Clone()
	return s.save()
}

func (s *FileStore) Get(ctx context.Context, approvalID string) (*contract.ApprovalContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[approvalID]
	if !ok {
		return nil, hankoErrors.NotFound("approval " + approvalID)
	}
	return c.Clone(), nil
}

func (s *FileStore) UpdateIf(ctx context.Context, approvalID string, expected contract.Decision, mutate Mutator) (*contract.ApprovalContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.contracts[approvalID]
	if !ok {
		return nil, hankoErrors.NotFound("approval " + approvalID)
	}

	if current.Decision != expected {
		// Losing side of a resolution race observes the winner's state.
		return current.Clone(), fmt.Errorf("approval %s is already %s: %w",
			approvalID, current.Decision, hankoErrors.ErrAlreadyResolved)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	s.contracts[approvalID] = next
	if err := s.save(); err != nil {
		// Keep memory and disk consistent on write failure.
		s.contracts[approvalID] = current
		return nil, hankoErrors.Wrap(err, "failed to persist contract")
	}
	return next.Clone(), nil
}

func (s *FileStore) ListPending(ctx context.Context) ([]*contract.ApprovalContract, error) {
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

func (s *FileStore) List(ctx context.Context) ([]*contract.ApprovalContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*contract.ApprovalContract, 0, len(s.contracts))
	for _, c := range s.contracts {
		all = append(all, c.Clone())
	}
	sortByRequestTime(all)
	return all, nil
}

// Close releases the directory lock.
func (s *FileStore) Close() {
	s.fileLock.Unlock()
}

// ReadContracts loads the store document without taking the directory lock.
// CLI inspection commands use it so they work while a daemon holds the store;
// the snapshot may be momentarily stale.
func ReadContracts(basePath string) ([]*contract.ApprovalContract, error) {
	data, err := os.ReadFile(filepath.Join(basePath, "contracts.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	contracts := make(map[string]*contract.ApprovalContract)
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("failed to parse store document: %w", err)
	}

	all := make([]*contract.ApprovalContract, 0, len(contracts))
	for _, c := range contracts {
		all = append(all, c)
	}
	sortByRequestTime(all)
	return all, nil
}

func sortByRequestTime(contracts []*contract.ApprovalContract) {
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].RequestTimestamp.After(contracts[j].RequestTimestamp)
	})
}
