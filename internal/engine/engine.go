// Package engine owns the approval contract life cycle: creation, dispatch,
// suspension, decision intake, validation, resolution, and persistence. All
// state lives in the store; the engine itself only coordinates.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/hanko/internal/channel"
	"github.com/harunnryd/hanko/internal/concurrency"
	"github.com/harunnryd/hanko/internal/contract"
	hankoErrors "github.com/harunnryd/hanko/internal/errors"
	"github.com/harunnryd/hanko/internal/logger"
	"github.com/harunnryd/hanko/internal/store"
	"github.com/harunnryd/hanko/internal/validator"
)

// Request carries the caller-supplied fields of a new approval.
type Request struct {
	Task        string
	RequestedBy string
	Environment string
	// Context is an opaque extension payload passed through to notification
	// rendering and audit untouched.
	Context map[string]string
}

// CompletionFunc is invoked asynchronously once, after the terminal contract
// has been persisted.
type CompletionFunc func(*contract.ApprovalContract)

// Option configures a single initiation.
type Option func(*initiateOptions)

type initiateOptions struct {
	onComplete CompletionFunc
}

// WithCompletionFunc registers an asynchronous completion callback.
func WithCompletionFunc(fn CompletionFunc) Option {
	return func(o *initiateOptions) {
		o.onComplete = fn
	}
}

type Engine struct {
	store           store.Store
	selector        *channel.Selector
	escalator       Escalator
	locks           *concurrency.ApprovalLockManager
	callbackBaseURL string
	defaultTimeout  time.Duration

	mu          sync.Mutex
	waiters     map[string]chan struct{}
	completions map[string]CompletionFunc
}

func New(st store.Store, selector *channel.Selector, escalator Escalator, callbackBaseURL string, defaultTimeout time.Duration) *Engine {
	if escalator == nil {
		escalator = &LogEscalator{}
	}
	return &Engine{
		store:           st,
		selector:        selector,
		escalator:       escalator,
		locks:           concurrency.NewApprovalLockManager(),
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		defaultTimeout:  defaultTimeout,
		waiters:         make(map[string]chan struct{}),
		completions:     make(map[string]CompletionFunc),
	}
}

// CallbackURL is the address the decision surface must invoke to resolve the
// identified contract.
func (e *Engine) CallbackURL(approvalID string) string {
	return e.callbackBaseURL + "/api/v1/approvals/" + approvalID + "/decision"
}

// Initiate creates and persists a pending contract, then dispatches it
// through the selected channel. Persistence happens before dispatch so a
// notification is never sent without a recoverable record. The pending
// contract is returned immediately; this call never blocks on the decision.
func (e *Engine) Initiate(ctx context.Context, req Request, opts ...Option) (*contract.ApprovalContract, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, hankoErrors.InvalidInput("task cannot be empty")
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		return nil, hankoErrors.InvalidInput("requested_by cannot be empty")
	}

	var options initiateOptions
	for _, opt := range opts {
		opt(&options)
	}

	c := contract.New(req.Task, req.RequestedBy, req.Environment, req.Context, e.defaultTimeout)

	if err := e.store.Put(ctx, c); err != nil {
		return nil, hankoErrors.Wrap(err, "failed to persist contract")
	}

	// The callback is registered before dispatch: a channel that invokes
	// the callback URL synchronously during delivery must still find it.
	// The dispatch-failure path deregisters it again.
	if options.onComplete != nil {
		e.mu.Lock()
		e.completions[c.ApprovalID] = options.onComplete
		e.mu.Unlock()
	}

	notifier, err := e.selector.Select(ctx)
	if err != nil {
		return e.failDispatch(ctx, c.ApprovalID, err.Error())
	}

	// Channel selection is recorded before dispatch for audit.
	c, err = e.store.UpdateIf(ctx, c.ApprovalID, contract.DecisionPending, func(next *contract.ApprovalContract) error {
		next.Channel = notifier.Kind()
		return nil
	})
	if err != nil {
		if !hankoErrors.IsCategory(err, hankoErrors.ErrAlreadyResolved) {
			e.dropCompletion(c.ApprovalID)
		}
		return nil, hankoErrors.Wrap(err, "failed to record channel selection")
	}

	if _, err := notifier.Dispatch(ctx, c, e.CallbackURL(c.ApprovalID)); err != nil {
		return e.failDispatch(ctx, c.ApprovalID, err.Error())
	}

	slog.Info("Approval initiated",
		"approval_id", c.ApprovalID,
		"requested_by", c.RequestedBy,
		"environment", c.Environment,
		"channel", c.Channel,
	)
	return c, nil
}

// failDispatch commits the error transition. No callback is ever registered
// for a contract that failed dispatch.
func (e *Engine) failDispatch(ctx context.Context, approvalID, reason string) (*contract.ApprovalContract, error) {
	c, err := e.store.UpdateIf(ctx, approvalID, contract.DecisionPending, func(next *contract.ApprovalContract) error {
		next.Resolve(contract.DecisionError, "", reason, time.Now())
		return nil
	})
	if err != nil {
		// A concurrent resolver may own the callback now; leave it alone.
		return c, hankoErrors.Wrap(err, "failed to record dispatch error")
	}
	e.dropCompletion(approvalID)

	slog.Error("Approval dispatch failed", "approval_id", approvalID, "reason", reason)
	e.notifyWaiters(approvalID)
	return c, fmt.Errorf("%s: %w", reason, hankoErrors.ErrDispatchFailed)
}

// Wait suspends the caller until the contract reaches a terminal decision or
// timeout elapses (zero means the configured default). Waiting is idempotent
// and re-entrant: all state lives in the store, so abandoning a wait leaves
// the contract pending and a later Wait re-attaches to the same outcome.
func (e *Engine) Wait(ctx context.Context, approvalID string, timeout time.Duration) (*contract.ApprovalContract, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		// Checked before registering so an unknown or already terminal
		// contract never leaves a stale waiter channel behind.
		c, err := e.store.Get(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		if c.IsTerminal() {
			return c, nil
		}

		ch := e.waiterChan(approvalID)

		// Re-read after registering so a resolution landing between the
		// check above and registration cannot be missed.
		c, err = e.store.Get(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		if c.IsTerminal() {
			e.discardWaiter(approvalID, ch)
			return c, nil
		}

		select {
		case <-ch:
			// Resolved; loop re-reads terminal state from the store.
		case <-timer.C:
			return e.expire(ctx, approvalID)
		case <-ctx.Done():
			// The contract stays pending; the decision can still arrive.
			return nil, ctx.Err()
		}
	}
}

// ProcessResponse applies a human decision delivered by a notification
// channel callback. It is idempotent under at-least-once delivery: a
// contract that already left pending is returned unchanged alongside
// ErrAlreadyResolved.
func (e *Engine) ProcessResponse(ctx context.Context, approvalID string, decision contract.Decision, approvedBy, comment string) (*contract.ApprovalContract, error) {
	e.locks.Lock(approvalID)
	defer e.locks.Unlock(approvalID)

	existing, err := e.store.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if existing.IsTerminal() {
		return existing, hankoErrors.AlreadyResolved("approval " + approvalID)
	}

	if !decision.IsHumanDecision() {
		return nil, hankoErrors.InvalidDecision(fmt.Sprintf("decision %q", decision))
	}

	resolved, err := e.store.UpdateIf(ctx, approvalID, contract.DecisionPending, func(next *contract.ApprovalContract) error {
		next.Resolve(decision, approvedBy, comment, time.Now())
		validator.Apply(next)
		return nil
	})
	if err != nil {
		// Lost the race against the timeout watcher or a concurrent
		// submission; the winner's terminal state stands.
		return resolved, err
	}

	slog.Info("Approval resolved",
		"approval_id", approvalID,
		"trace_id", logger.GetTraceID(ctx),
		"decision", resolved.Decision,
		"approved_by", resolved.ApprovedBy,
		"agent_validation", resolved.AgentValidation,
		"resolution_time_seconds", resolved.ResolutionTimeSeconds,
	)

	// Strict ordering: the terminal state is persisted above before any
	// waiter or callback observes it.
	e.notifyWaiters(approvalID)
	e.fireCompletion(approvalID, resolved)
	return resolved, nil
}

// expire commits the system-initiated timeout transition. The store write is
// the single point of truth: if a human decision landed first, that terminal
// state is returned instead and the timeout is discarded.
func (e *Engine) expire(ctx context.Context, approvalID string) (*contract.ApprovalContract, error) {
	c, err := e.store.UpdateIf(ctx, approvalID, contract.DecisionPending, func(next *contract.ApprovalContract) error {
		next.Resolve(contract.DecisionTimeout, "", "approval timed out", time.Now())
		return nil
	})
	if err != nil {
		if hankoErrors.IsCategory(err, hankoErrors.ErrAlreadyResolved) {
			return c, nil
		}
		return nil, err
	}

	slog.Warn("Approval timed out", "approval_id", approvalID)
	e.notifyWaiters(approvalID)
	e.fireCompletion(approvalID, c)

	escalated := c
	concurrency.SafeGo(func() {
		if err := e.escalator.Escalate(context.Background(), escalated); err != nil {
			slog.Error("Escalation failed", "approval_id", escalated.ApprovalID, "error", err)
		}
	}, nil)

	return c, nil
}

// Get returns the current contract state.
func (e *Engine) Get(ctx context.Context, approvalID string) (*contract.ApprovalContract, error) {
	return e.store.Get(ctx, approvalID)
}

func (e *Engine) waiterChan(approvalID string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.waiters[approvalID]
	if !ok {
		ch = make(chan struct{})
		e.waiters[approvalID] = ch
	}
	return ch
}

// discardWaiter removes the channel only while it is still the registered
// one. A channel created before the resolution was already closed and
// removed by notifyWaiters, so other waiters sharing ch here registered
// after the resolution and will observe the terminal state themselves.
func (e *Engine) discardWaiter(approvalID string, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.waiters[approvalID]; ok && cur == ch {
		delete(e.waiters, approvalID)
	}
}

func (e *Engine) notifyWaiters(approvalID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch, ok := e.waiters[approvalID]; ok {
		close(ch)
		delete(e.waiters, approvalID)
	}
}

func (e *Engine) dropCompletion(approvalID string) {
	e.mu.Lock()
	delete(e.completions, approvalID)
	e.mu.Unlock()
}

func (e *Engine) fireCompletion(approvalID string, c *contract.ApprovalContract) {
	e.mu.Lock()
	fn, ok := e.completions[approvalID]
	delete(e.completions, approvalID)
	e.mu.Unlock()

	if !ok {
		return
	}

	concurrency.SafeGo(func() {
		fn(c)
	}, nil)
}
