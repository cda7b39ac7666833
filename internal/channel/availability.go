package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/hanko/internal/errors"

	"github.com/slack-go/slack"
)

// Availability is the result of a primary-channel reachability probe.
type Availability struct {
	Available bool
	Reason    string
}

// Prober answers whether the primary channel's backing platform is reachable
// and entitled.
type Prober interface {
	Probe(ctx context.Context) error
}

// SlackProber probes workspace reachability and token entitlement.
type SlackProber struct {
	client *slack.Client
}

func NewSlackProber(botToken string) *SlackProber {
	return &SlackProber{client: slack.New(botToken)}
}

func (p *SlackProber) Probe(ctx context.Context) error {
	_, err := p.client.AuthTestContext(ctx)
	return err
}

// Checker caches the probe result for a short TTL so bursts of approvals do
// not hammer the backing platform. A negative cached result only influences
// channel selection for new initiations.
type Checker struct {
	prober Prober
	ttl    time.Duration
	now    func() time.Time
	mapper errors.ErrorMapper

	mu        sync.Mutex
	cached    Availability
	checkedAt time.Time
}

func NewChecker(prober Prober, ttl time.Duration) *Checker {
	return &Checker{
		prober: prober,
		ttl:    ttl,
		now:    time.Now,
		mapper: errors.NewDefaultErrorMapper(),
	}
}

// NewCheckerWithClock injects a clock for TTL tests.
func NewCheckerWithClock(prober Prober, ttl time.Duration, now func() time.Time) *Checker {
	return &Checker{prober: prober, ttl: ttl, now: now, mapper: errors.NewDefaultErrorMapper()}
}

// NewDisabledChecker reports the primary channel permanently unavailable.
func NewDisabledChecker(reason string) *Checker {
	return &Checker{now: time.Now, cached: Availability{Available: false, Reason: reason}}
}

func (c *Checker) Check(ctx context.Context) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.ttl {
		return c.cached
	}
	if c.prober == nil {
		return c.cached
	}

	result := Availability{Available: true}
	if err := c.prober.Probe(ctx); err != nil {
		mapped := c.mapper.MapError(err)
		result = Availability{Available: false, Reason: err.Error()}
		slog.Warn("Primary channel unavailable",
			"reason", err, "category", c.mapper.Category(err), "retryable", c.mapper.IsRetryable(mapped))
	}

	c.cached = result
	c.checkedAt = c.now()
	return result
}
