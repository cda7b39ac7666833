// Package channel delivers approval requests to a decision surface. Exactly
// one channel is used per approval, selected by availability at initiation.
// Channels are fire-and-forget: after a successful dispatch acknowledgment
// the engine is purely callback-driven.
package channel

import (
	"context"
	"time"

	"github.com/harunnryd/hanko/internal/contract"
)

// DispatchReceipt acknowledges a successful hand-off to the channel backend.
type DispatchReceipt struct {
	Channel contract.ChannelKind
	// Ref is the platform-side identifier (message timestamp, run ID).
	Ref    string
	SentAt time.Time
}

// Notifier is the capability shared by the primary and fallback channels.
type Notifier interface {
	// Name returns the channel name (e.g. "slack", "webhook").
	Name() string

	// Kind identifies the channel variant recorded on the contract.
	Kind() contract.ChannelKind

	// Dispatch submits the approval request. callbackURL is where the
	// decision surface must deliver the human decision. No retries here;
	// a failed dispatch surfaces as errors.ErrDispatchFailed.
	Dispatch(ctx context.Context, c *contract.ApprovalContract, callbackURL string) (*DispatchReceipt, error)

	// Health checks if the channel backend is reachable.
	Health(ctx context.Context) error
}
