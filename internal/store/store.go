// Package store persists approval contracts durably. It is the single source
// of truth for contract state: terminal transitions are committed here with a
// compare-and-set so exactly one writer wins a resolution race.
package store

import (
	"context"

	"github.com/harunnryd/hanko/internal/contract"
)

// Mutator adjusts a contract inside a compare-and-set update. It runs with
// the store's write lock held and must not block.
type Mutator func(c *contract.ApprovalContract) error

// Store is the audit-store interface consumed by the engine. Contracts are
// never deleted; retention is an external policy concern.
type Store interface {
	// Put creates or overwrites a contract keyed by its approval ID.
	Put(ctx context.Context, c *contract.ApprovalContract) error

	// Get returns a copy of the contract, or errors.ErrNotFound.
	Get(ctx context.Context, approvalID string) (*contract.ApprovalContract, error)

	// UpdateIf applies mutate only while the stored decision still equals
	// expected, then persists. Any other current decision yields
	// errors.ErrAlreadyResolved with no state change.
	UpdateIf(ctx context.Context, approvalID string, expected contract.Decision, mutate Mutator) (*contract.ApprovalContract, error)

	// ListPending returns copies of all contracts still awaiting a decision.
	ListPending(ctx context.Context) ([]*contract.ApprovalContract, error)

	// List returns copies of every contract, newest first.
	List(ctx context.Context) ([]*contract.ApprovalContract, error)
}
