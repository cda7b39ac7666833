package components

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/hanko/internal/config"
	"github.com/harunnryd/hanko/internal/daemon"
	"github.com/harunnryd/hanko/internal/store"
)

// ApprovalStoreComponent owns the on-disk contract store and its directory
// lock. Everything else reads and writes through it.
type ApprovalStoreComponent struct {
	storeCfg    *config.StoreConfig
	store       *store.FileStore
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewApprovalStoreComponent(storeCfg *config.StoreConfig) *ApprovalStoreComponent {
	return &ApprovalStoreComponent{storeCfg: storeCfg}
}

func (s *ApprovalStoreComponent) Name() string {
	return "ApprovalStore"
}

func (s *ApprovalStoreComponent) Dependencies() []string {
	return []string{}
}

func (s *ApprovalStoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ApprovalStore init cancelled: %w", ctx.Err())
	default:
	}

	lockTimeout, err := config.DurationOrDefault(s.storeCfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(s.storeCfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return fmt.Errorf("parse store lock retry: %w", err)
	}
	lockMaxRetry := s.storeCfg.LockMaxRetry
	if lockMaxRetry <= 0 {
		lockMaxRetry = config.DefaultStoreLockMaxRetry
	}

	st, err := store.NewFileStore(s.storeCfg.Path, &store.FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: lockMaxRetry,
	})
	if err != nil {
		if strings.Contains(err.Error(), "is locked by another instance") {
			return fmt.Errorf("store %s is locked by another instance: %w", s.storeCfg.Path, err)
		}
		return fmt.Errorf("failed to open approval store: %w", err)
	}

	s.store = st
	s.initialized = true
	slog.Info("ApprovalStore initialized", "component", s.Name(), "path", s.storeCfg.Path)
	return nil
}

func (s *ApprovalStoreComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("ApprovalStore not initialized")
	}
	s.started = true
	return nil
}

func (s *ApprovalStoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		slog.Info("ApprovalStore not started, skipping stop", "component", s.Name())
		return nil
	}

	s.store.Close()
	s.started = false
	slog.Info("ApprovalStore stopped", "component", s.Name())
	return nil
}

func (s *ApprovalStoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !s.started {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *ApprovalStoreComponent) Store() *store.FileStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}
