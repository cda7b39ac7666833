package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/hanko/internal/channel"
	"github.com/harunnryd/hanko/internal/contract"
	hankoErrors "github.com/harunnryd/hanko/internal/errors"
	"github.com/harunnryd/hanko/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchRecord struct {
	approvalID  string
	callbackURL string
}

type fakeNotifier struct {
	kind contract.ChannelKind
	err  error

	mu         sync.Mutex
	dispatched []dispatchRecord
}

func (f *fakeNotifier) Name() string               { return string(f.kind) }
func (f *fakeNotifier) Kind() contract.ChannelKind { return f.kind }

func (f *fakeNotifier) Dispatch(ctx context.Context, c *contract.ApprovalContract, callbackURL string) (*channel.DispatchReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.dispatched = append(f.dispatched, dispatchRecord{approvalID: c.ApprovalID, callbackURL: callbackURL})
	return &channel.DispatchReceipt{Channel: f.kind, Ref: c.ApprovalID, SentAt: time.Now()}, nil
}

func (f *fakeNotifier) Health(ctx context.Context) error { return nil }

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEscalator) Escalate(ctx context.Context, c *contract.ApprovalContract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c.ApprovalID)
	return nil
}

func (f *fakeEscalator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(t *testing.T, notifier channel.Notifier) (*Engine, *fakeEscalator) {
	t.Helper()

	esc := &fakeEscalator{}
	sel := channel.NewSelector(channel.NewDisabledChecker("test"), nil, notifier)
	e := New(store.NewMemoryStore(), sel, esc, "http://localhost:8080", 2*time.Hour)
	return e, esc
}

func newRequest() Request {
	return Request{
		Task:        "deploy v2.0.0",
		RequestedBy: "dev@x",
		Environment: "production",
		Context:     map[string]string{"cluster": "prod-1"},
	}
}

func TestInitiateDispatchesAndPersists(t *testing.T) {
	notifier := &fakeNotifier{kind: contract.ChannelWebhook}
	e, _ := newTestEngine(t, notifier)
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	assert.Equal(t, contract.DecisionPending, c.Decision)
	assert.Equal(t, contract.ValidationPending, c.AgentValidation)
	assert.Equal(t, contract.ChannelWebhook, c.Channel)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, c.ApprovalID, notifier.dispatched[0].approvalID)
	assert.Equal(t, "http://localhost:8080/api/v1/approvals/"+c.ApprovalID+"/decision", notifier.dispatched[0].callbackURL)

	stored, err := e.Get(ctx, c.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionPending, stored.Decision)
}

func TestInitiateRejectsEmptyFields(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})

	_, err := e.Initiate(context.Background(), Request{Task: "", RequestedBy: "dev@x"})
	assert.ErrorIs(t, err, hankoErrors.ErrInvalidInput)

	_, err = e.Initiate(context.Background(), Request{Task: "deploy", RequestedBy: "  "})
	assert.ErrorIs(t, err, hankoErrors.ErrInvalidInput)
}

func TestInitiateDispatchFailureMarksError(t *testing.T) {
	notifier := &fakeNotifier{kind: contract.ChannelWebhook, err: hankoErrors.DispatchFailed("backend down")}
	e, _ := newTestEngine(t, notifier)

	fired := make(chan struct{}, 1)
	c, err := e.Initiate(context.Background(), newRequest(), WithCompletionFunc(func(*contract.ApprovalContract) {
		fired <- struct{}{}
	}))
	assert.ErrorIs(t, err, hankoErrors.ErrDispatchFailed)
	require.NotNil(t, c)
	assert.Equal(t, contract.DecisionError, c.Decision)
	assert.False(t, c.AuthorizedToProceed())

	// No callback is ever registered for a failed dispatch.
	e.mu.Lock()
	assert.Empty(t, e.completions)
	e.mu.Unlock()
	select {
	case <-fired:
		t.Fatal("completion callback fired for failed dispatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitiateNoChannelAvailable(t *testing.T) {
	sel := channel.NewSelector(channel.NewDisabledChecker("test"), nil, nil)
	e := New(store.NewMemoryStore(), sel, nil, "http://localhost:8080", time.Hour)

	c, err := e.Initiate(context.Background(), newRequest())
	assert.ErrorIs(t, err, hankoErrors.ErrDispatchFailed)
	require.NotNil(t, c)
	assert.Equal(t, contract.DecisionError, c.Decision)
}

func TestProcessResponseApproved(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	resolved, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	require.NoError(t, err)

	assert.Equal(t, contract.DecisionApproved, resolved.Decision)
	assert.Equal(t, contract.ValidationPassed, resolved.AgentValidation)
	assert.Equal(t, "ops@x", resolved.ApprovedBy)
	assert.Greater(t, resolved.ResolutionTimeSeconds, 0.0)
	assert.True(t, resolved.AuthorizedToProceed())
}

func TestProcessResponseIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	first, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	require.NoError(t, err)

	second, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	assert.ErrorIs(t, err, hankoErrors.ErrAlreadyResolved)
	require.NotNil(t, second)

	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.ApprovedBy, second.ApprovedBy)
	assert.Equal(t, first.ResolutionTimestamp.Unix(), second.ResolutionTimestamp.Unix())
	assert.Equal(t, first.ResolutionTimeSeconds, second.ResolutionTimeSeconds)
}

func TestProcessResponseRejectedWithoutComment(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	resolved, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionRejected, "ops@x", "")
	require.NoError(t, err)

	// Both axes must be asserted independently: the human decision stands,
	// but validation fails because rejection requires a reason.
	assert.Equal(t, contract.DecisionRejected, resolved.Decision)
	assert.Equal(t, contract.ValidationFailed, resolved.AgentValidation)
	assert.NotEmpty(t, resolved.ValidationReason)
	assert.False(t, resolved.AuthorizedToProceed())
}

func TestProcessResponseRejectedWithComment(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	resolved, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionRejected, "ops@x", "missing sign-off")
	require.NoError(t, err)

	assert.Equal(t, contract.DecisionRejected, resolved.Decision)
	assert.Equal(t, contract.ValidationPassed, resolved.AgentValidation)
	assert.False(t, resolved.AuthorizedToProceed())
}

func TestProcessResponseInvalidDecision(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.Decision("maybe"), "ops@x", "")
	assert.ErrorIs(t, err, hankoErrors.ErrInvalidDecision)

	// A caller cannot inject system-only terminal values either.
	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionTimeout, "ops@x", "")
	assert.ErrorIs(t, err, hankoErrors.ErrInvalidDecision)
}

func TestProcessResponseUnknownApproval(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})

	_, err := e.ProcessResponse(context.Background(), "missing", contract.DecisionApproved, "ops@x", "")
	assert.ErrorIs(t, err, hankoErrors.ErrNotFound)
}

func TestWaitReturnsWhenDecisionArrives(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	done := make(chan *contract.ApprovalContract, 1)
	go func() {
		resolved, waitErr := e.Wait(ctx, c.ApprovalID, time.Minute)
		require.NoError(t, waitErr)
		done <- resolved
	}()

	// Give the waiter time to suspend before resolving.
	time.Sleep(20 * time.Millisecond)
	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	require.NoError(t, err)

	select {
	case resolved := <-done:
		assert.Equal(t, contract.DecisionApproved, resolved.Decision)
		assert.True(t, resolved.AuthorizedToProceed())
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestWaitTimesOut(t *testing.T) {
	e, esc := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	resolved, err := e.Wait(ctx, c.ApprovalID, 30*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, contract.DecisionTimeout, resolved.Decision)
	assert.Equal(t, contract.ValidationPending, resolved.AgentValidation, "timeout bypasses validation")
	assert.Empty(t, resolved.ApprovedBy)
	assert.False(t, resolved.AuthorizedToProceed())

	// A late human decision must be rejected, not silently accepted.
	late, err := e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	assert.ErrorIs(t, err, hankoErrors.ErrAlreadyResolved)
	assert.Equal(t, contract.DecisionTimeout, late.Decision)

	assert.Eventually(t, func() bool { return esc.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWaitCancellationLeavesContractPending(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})

	c, err := e.Initiate(context.Background(), newRequest())
	require.NoError(t, err)

	waitCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, waitErr := e.Wait(waitCtx, c.ApprovalID, time.Minute)
		errCh <- waitErr
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case waitErr := <-errCh:
		assert.ErrorIs(t, waitErr, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	stored, err := e.Get(context.Background(), c.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionPending, stored.Decision)

	// A later wait re-attaches to the same outcome.
	go func() {
		time.Sleep(20 * time.Millisecond)
		e.ProcessResponse(context.Background(), c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	}()

	resolved, err := e.Wait(context.Background(), c.ApprovalID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionApproved, resolved.Decision)
}

func TestWaitOnAlreadyResolvedContractReturnsImmediately(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)

	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	require.NoError(t, err)

	resolved, err := e.Wait(ctx, c.ApprovalID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionApproved, resolved.Decision)
}

func TestManyConcurrentWaitersAcrossContracts(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		c, err := e.Initiate(ctx, newRequest())
		require.NoError(t, err)
		ids[i] = c.ApprovalID
	}

	var wg sync.WaitGroup
	results := make([]contract.Decision, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolved, err := e.Wait(ctx, ids[i], 5*time.Second)
			if err == nil {
				results[i] = resolved.Decision
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			_, err := e.ProcessResponse(ctx, ids[i], contract.DecisionApproved, "ops@x", "")
			require.NoError(t, err)
		} else {
			_, err := e.ProcessResponse(ctx, ids[i], contract.DecisionRejected, "ops@x", "no")
			require.NoError(t, err)
		}
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if i%2 == 0 {
			assert.Equal(t, contract.DecisionApproved, results[i])
		} else {
			assert.Equal(t, contract.DecisionRejected, results[i])
		}
	}
}

func TestCompletionCallbackFires(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	completed := make(chan *contract.ApprovalContract, 1)
	c, err := e.Initiate(ctx, newRequest(), WithCompletionFunc(func(final *contract.ApprovalContract) {
		completed <- final
	}))
	require.NoError(t, err)

	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionApproved, "ops@x", "")
	require.NoError(t, err)

	select {
	case final := <-completed:
		assert.Equal(t, contract.DecisionApproved, final.Decision)
		assert.Equal(t, contract.ValidationPassed, final.AgentValidation)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

// resolvingNotifier resolves the contract from inside Dispatch, the way a
// webhook automation that decides synchronously before acking does.
type resolvingNotifier struct {
	fakeNotifier
	resolve func(approvalID string)
}

func (f *resolvingNotifier) Dispatch(ctx context.Context, c *contract.ApprovalContract, callbackURL string) (*channel.DispatchReceipt, error) {
	f.resolve(c.ApprovalID)
	return f.fakeNotifier.Dispatch(ctx, c, callbackURL)
}

func TestCompletionCallbackSurvivesResolutionDuringDispatch(t *testing.T) {
	notifier := &resolvingNotifier{fakeNotifier: fakeNotifier{kind: contract.ChannelWebhook}}
	e, _ := newTestEngine(t, notifier)
	ctx := context.Background()

	notifier.resolve = func(approvalID string) {
		_, err := e.ProcessResponse(ctx, approvalID, contract.DecisionApproved, "ops@x", "")
		require.NoError(t, err)
	}

	completed := make(chan *contract.ApprovalContract, 1)
	c, err := e.Initiate(ctx, newRequest(), WithCompletionFunc(func(final *contract.ApprovalContract) {
		completed <- final
	}))
	require.NoError(t, err)

	select {
	case final := <-completed:
		assert.Equal(t, contract.DecisionApproved, final.Decision)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	stored, err := e.Get(ctx, c.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionApproved, stored.Decision)

	e.mu.Lock()
	assert.Empty(t, e.completions, "consumed callback must not linger")
	e.mu.Unlock()
}

func TestWaitLeavesNoWaiterWithoutBlocking(t *testing.T) {
	e, _ := newTestEngine(t, &fakeNotifier{kind: contract.ChannelWebhook})
	ctx := context.Background()

	_, err := e.Wait(ctx, "missing", 50*time.Millisecond)
	assert.ErrorIs(t, err, hankoErrors.ErrNotFound)

	c, err := e.Initiate(ctx, newRequest())
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, c.ApprovalID, contract.DecisionRejected, "ops@x", "")
	require.NoError(t, err)

	got, err := e.Wait(ctx, c.ApprovalID, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, contract.DecisionRejected, got.Decision)

	e.mu.Lock()
	assert.Empty(t, e.waiters, "non-blocking waits must not register waiters")
	e.mu.Unlock()
}
