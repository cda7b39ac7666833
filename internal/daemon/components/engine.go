package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/hanko/internal/channel"
	"github.com/harunnryd/hanko/internal/config"
	"github.com/harunnryd/hanko/internal/daemon"
	"github.com/harunnryd/hanko/internal/engine"
)

// EngineComponent assembles the notification channels, the escalator, and
// the approval engine, and runs the timeout sweeper for its lifetime.
type EngineComponent struct {
	cfg         *config.Config
	storeComp   *ApprovalStoreComponent
	engine      *engine.Engine
	sweeper     *engine.Sweeper
	cancelSweep context.CancelFunc
	sweepDone   chan struct{}
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewEngineComponent(cfg *config.Config, storeComp *ApprovalStoreComponent) *EngineComponent {
	return &EngineComponent{
		cfg:       cfg,
		storeComp: storeComp,
	}
}

func (e *EngineComponent) Name() string {
	return "Engine"
}

func (e *EngineComponent) Dependencies() []string {
	return []string{"ApprovalStore"}
}

func (e *EngineComponent) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.storeComp.Store()
	if st == nil {
		return fmt.Errorf("approval store not available")
	}

	selector, err := buildSelector(e.cfg)
	if err != nil {
		return err
	}

	escalator, err := buildEscalator(e.cfg)
	if err != nil {
		return err
	}

	defaultTimeout, err := config.DurationOrDefault(e.cfg.Approval.DefaultTimeout, config.DefaultApprovalTimeout)
	if err != nil {
		return fmt.Errorf("parse approval default timeout: %w", err)
	}

	e.engine = engine.New(st, selector, escalator, e.cfg.Server.PublicBaseURL, defaultTimeout)

	sweeper, err := engine.NewSweeper(e.engine, scheduleOrDefault(e.cfg.Approval.SweepSchedule))
	if err != nil {
		return err
	}
	e.sweeper = sweeper

	e.initialized = true
	slog.Info("Engine initialized", "component", e.Name(), "default_timeout", defaultTimeout)
	return nil
}

func (e *EngineComponent) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return fmt.Errorf("Engine not initialized")
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	e.cancelSweep = cancel
	e.sweepDone = make(chan struct{})
	go func() {
		defer close(e.sweepDone)
		e.sweeper.Run(sweepCtx)
	}()

	e.started = true
	return nil
}

func (e *EngineComponent) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		slog.Info("Engine not started, skipping stop", "component", e.Name())
		return nil
	}

	e.cancelSweep()
	select {
	case <-e.sweepDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.started = false
	slog.Info("Engine stopped", "component", e.Name())
	return nil
}

func (e *EngineComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return &daemon.ComponentHealth{Name: e.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !e.started {
		return &daemon.ComponentHealth{Name: e.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: e.Name(), Healthy: true}, nil
}

func (e *EngineComponent) Engine() *engine.Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.engine
}

func buildSelector(cfg *config.Config) (*channel.Selector, error) {
	var primary channel.Notifier
	checker := channel.NewDisabledChecker("slack channel disabled")

	if cfg.Channels.Slack.Enabled {
		if cfg.Channels.Slack.BotToken == "" {
			return nil, fmt.Errorf("slack channel enabled but bot token is empty")
		}
		if cfg.Channels.Slack.Channel == "" {
			return nil, fmt.Errorf("slack channel enabled but channel is empty")
		}
		primary = channel.NewSlackNotifier(cfg.Channels.Slack.BotToken, cfg.Channels.Slack.Channel)

		ttl, err := config.DurationOrDefault(cfg.Channels.Slack.AvailabilityTTL, config.DefaultSlackAvailabilityTTL)
		if err != nil {
			return nil, fmt.Errorf("parse slack availability ttl: %w", err)
		}
		checker = channel.NewChecker(channel.NewSlackProber(cfg.Channels.Slack.BotToken), ttl)
	}

	var fallback channel.Notifier
	if cfg.Channels.Webhook.URL != "" {
		timeout, err := config.DurationOrDefault(cfg.Channels.Webhook.Timeout, config.DefaultWebhookTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse webhook timeout: %w", err)
		}
		fallback = channel.NewWebhookNotifier(cfg.Channels.Webhook.URL, timeout)
	}

	if primary == nil && fallback == nil {
		return nil, fmt.Errorf("no notification channel configured")
	}

	return channel.NewSelector(checker, primary, fallback), nil
}

func buildEscalator(cfg *config.Config) (engine.Escalator, error) {
	if !cfg.Escalation.Telegram.Enabled {
		return nil, nil
	}
	if cfg.Escalation.Telegram.BotToken == "" {
		return nil, fmt.Errorf("telegram escalation enabled but bot token is empty")
	}
	return engine.NewTelegramEscalator(cfg.Escalation.Telegram.BotToken, cfg.Escalation.Telegram.ChatID)
}

func scheduleOrDefault(spec string) string {
	if spec == "" {
		return config.DefaultApprovalSweepSchedule
	}
	return spec
}
