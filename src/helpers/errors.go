package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type InsightStreamError struct {
	Message string
	Cause   error
}

func (e *InsightStreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InsightStreamError) Unwrap() error {
	return e.Cause
}

// Distinct error types for the aggregation pipeline.
// StoreUnavailable/StoreTimeout surface from the aggregate store client,
// UpstreamQueryError wraps any compute failure handed to dedup waiters,
// SubscriberSendError stays contained inside the hub.
type StoreUnavailableError struct{ InsightStreamError }
type StoreTimeoutError struct{ InsightStreamError }
type UpstreamQueryError struct{ InsightStreamError }
type SubscriberSendError struct{ InsightStreamError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewStoreUnavailable(op string, cause error) error {
	return &StoreUnavailableError{InsightStreamError{Message: fmt.Sprintf("store unavailable during %s", op), Cause: cause}}
}

func NewStoreTimeout(op string, cause error) error {
	return &StoreTimeoutError{InsightStreamError{Message: fmt.Sprintf("store timeout during %s", op), Cause: cause}}
}

func NewUpstreamQueryError(op string, cause error) error {
	return &UpstreamQueryError{InsightStreamError{Message: fmt.Sprintf("%s failed", op), Cause: cause}}
}

func NewSubscriberSendError(id string, cause error) error {
	return &SubscriberSendError{InsightStreamError{Message: fmt.Sprintf("send to subscriber %s failed", id), Cause: cause}}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// WrapStoreError maps a raw driver error onto the taxonomy. Context
// expiry counts as a timeout, everything else as unavailability.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewStoreTimeout(op, err)
	}
	return NewStoreUnavailable(op, err)
}

func IsStoreTimeout(err error) bool {
	var te *StoreTimeoutError
	return errors.As(err, &te)
}

func IsStoreUnavailable(err error) bool {
	var ue *StoreUnavailableError
	return errors.As(err, &ue)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff. The aggregation path never uses this (a failed
// compute waits for the next tick); it backs outbound network calls only.
func RetryWithBackoff(ctx context.Context, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}
