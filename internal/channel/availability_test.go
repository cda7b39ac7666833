package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harunnryd/hanko/internal/errors"
)

type fakeProber struct {
	err   error
	calls int
}

func (p *fakeProber) Probe(ctx context.Context) error {
	p.calls++
	return p.err
}

func TestCheckerCachesWithinTTL(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	prober := &fakeProber{}
	checker := NewCheckerWithClock(prober, time.Minute, clock)

	ctx := context.Background()
	assert.True(t, checker.Check(ctx).Available)
	assert.True(t, checker.Check(ctx).Available)
	assert.Equal(t, 1, prober.calls, "second check within TTL must not probe")

	now = now.Add(61 * time.Second)
	assert.True(t, checker.Check(ctx).Available)
	assert.Equal(t, 2, prober.calls, "expired TTL must probe again")
}

func TestCheckerReportsProbeFailure(t *testing.T) {
	prober := &fakeProber{err: errors.Transient("workspace unreachable")}
	checker := NewChecker(prober, time.Minute)

	avail := checker.Check(context.Background())
	assert.False(t, avail.Available)
	assert.Contains(t, avail.Reason, "workspace unreachable")
}

func TestCheckerNegativeResultIsCached(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	prober := &fakeProber{err: errors.Transient("down")}
	checker := NewCheckerWithClock(prober, time.Minute, clock)

	ctx := context.Background()
	assert.False(t, checker.Check(ctx).Available)

	// Backend recovers, but the cached negative result holds until TTL expiry.
	prober.err = nil
	assert.False(t, checker.Check(ctx).Available)

	now = now.Add(2 * time.Minute)
	assert.True(t, checker.Check(ctx).Available)
}

func TestDisabledChecker(t *testing.T) {
	checker := NewDisabledChecker("slack not configured")

	avail := checker.Check(context.Background())
	assert.False(t, avail.Available)
	assert.Equal(t, "slack not configured", avail.Reason)
}
