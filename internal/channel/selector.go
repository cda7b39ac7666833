package channel

import (
	"context"
	"log/slog"

	"github.com/harunnryd/hanko/internal/errors"
)

// Selector picks the channel for a new initiation: primary when the
// availability checker reports it reachable and entitled, else fallback.
type Selector struct {
	checker  *Checker
	primary  Notifier
	fallback Notifier
}

func NewSelector(checker *Checker, primary, fallback Notifier) *Selector {
	return &Selector{
		checker:  checker,
		primary:  primary,
		fallback: fallback,
	}
}

func (s *Selector) Select(ctx context.Context) (Notifier, error) {
	if s.primary != nil {
		avail := s.checker.Check(ctx)
		if avail.Available {
			return s.primary, nil
		}
		slog.Info("Falling back from primary channel", "reason", avail.Reason)
	}

	if s.fallback != nil {
		return s.fallback, nil
	}

	return nil, errors.DispatchFailed("no notification channel available")
}
