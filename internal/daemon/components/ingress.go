package components

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/hanko/internal/config"
	"github.com/harunnryd/hanko/internal/daemon"
	"github.com/harunnryd/hanko/internal/idempotency"
	"github.com/harunnryd/hanko/internal/ingress"
)

// IngressComponent runs the callback HTTP server through which decisions
// arrive. It starts last so the engine is always ready behind it.
type IngressComponent struct {
	cfg         *config.Config
	engineComp  *EngineComponent
	server      *ingress.Server
	deliveries  *idempotency.Store
	shutdownTTL time.Duration
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewIngressComponent(cfg *config.Config, engineComp *EngineComponent) *IngressComponent {
	return &IngressComponent{
		cfg:        cfg,
		engineComp: engineComp,
	}
}

func (c *IngressComponent) Name() string {
	return "Ingress"
}

func (c *IngressComponent) Dependencies() []string {
	return []string{"ApprovalStore", "Engine"}
}

func (c *IngressComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	eng := c.engineComp.Engine()
	if eng == nil {
		return fmt.Errorf("engine not available")
	}

	readTimeout, err := config.DurationOrDefault(c.cfg.Server.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(c.cfg.Server.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(c.cfg.Server.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(c.cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}
	dedupTTL, err := config.DurationOrDefault(c.cfg.Approval.DeliveryDedupTTL, config.DefaultApprovalDeliveryDedupTTL)
	if err != nil {
		return fmt.Errorf("parse delivery dedup ttl: %w", err)
	}

	deliveries, err := idempotency.NewStore(filepath.Join(c.cfg.Store.Path, "deliveries.json"))
	if err != nil {
		return fmt.Errorf("failed to open delivery store: %w", err)
	}
	c.deliveries = deliveries

	c.server = ingress.NewServer(ingress.ServerConfig{
		Port:          c.cfg.Server.Port,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
		SigningSecret: c.cfg.Channels.Slack.SigningSecret,
		DedupTTL:      dedupTTL,
	}, eng, deliveries)
	c.shutdownTTL = shutdownTimeout

	c.initialized = true
	slog.Info("Ingress initialized", "component", c.Name(), "port", c.cfg.Server.Port)
	return nil
}

func (c *IngressComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("Ingress not initialized")
	}

	c.server.Start()
	c.started = true
	return nil
}

func (c *IngressComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		slog.Info("Ingress not started, skipping stop", "component", c.Name())
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, c.shutdownTTL)
	defer cancel()

	if err := c.server.Stop(shutdownCtx); err != nil {
		slog.Error("Ingress shutdown error", "component", c.Name(), "error", err)
		return err
	}

	c.deliveries.Prune()
	if err := c.deliveries.Save(); err != nil {
		slog.Warn("Failed to persist delivery store", "error", err)
	}

	c.started = false
	slog.Info("Ingress stopped", "component", c.Name())
	return nil
}

func (c *IngressComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !c.started {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}
