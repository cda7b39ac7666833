package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrNotFound - no contract exists for the given approval ID
	ErrNotFound = errors.New("not found")

	// ErrInvalidDecision - submitted decision is outside {approved, rejected}
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrAlreadyResolved - contract already left pending; callers treat this as an idempotent no-op
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrDispatchFailed - the selected notification channel rejected the dispatch
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrDuplicateDelivery - callback delivery already processed (ignore silently)
	ErrDuplicateDelivery = errors.New("duplicate delivery")

	// ErrInvalidInput - malformed request payload
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - concurrent writers raced on the same contract
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error (retry with backoff)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error (generic message + trace id)
	ErrInternal = errors.New("internal error")
)
