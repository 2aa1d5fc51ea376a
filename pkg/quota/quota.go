// Package quota implements per-user token quota accounting across a list of
// independent limiters. Pre-flight checks run before the upstream call is
// made; post-flight consumption runs only after a turn completes
// successfully. Atomicity across limiters is not required — partial
// consumption (one limiter updated, another not) is acceptable by design.
package quota

import (
	"context"
	"fmt"
)

// Limiter is one quota backend tracking input/output token usage per user.
type Limiter interface {
	// Name identifies the limiter in QuotaExceeded error bodies.
	Name() string
	// EnsureAvailable returns a *QuotaExceeded if userID has no remaining
	// budget, or a storage error on backend failure.
	EnsureAvailable(ctx context.Context, userID string) error
	// Consume records inputTokens/outputTokens usage for userID.
	Consume(ctx context.Context, userID string, inputTokens, outputTokens int) error
	// Available returns the remaining token budget for userID.
	Available(ctx context.Context, userID string) (int, error)
}

// QuotaExceeded is returned by EnsureAvailable when a limiter has no budget
// left; it maps to HTTP 429 with a structured body naming the limiter.
type QuotaExceeded struct {
	LimiterName string
	Available   int
	Requested   int
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded on limiter %q: available=%d requested=%d", e.LimiterName, e.Available, e.Requested)
}

// EnsureAvailableAll runs EnsureAvailable on every limiter, short-circuiting
// on the first failure (pre-flight, step 4 of the unary/streaming handlers).
func EnsureAvailableAll(ctx context.Context, limiters []Limiter, userID string) error {
	for _, l := range limiters {
		if err := l.EnsureAvailable(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeAll runs Consume on every limiter. Failures are logged by the
// caller and do not roll back limiters already consumed — partial
// consumption is acceptable per the package's atomicity contract.
func ConsumeAll(ctx context.Context, limiters []Limiter, userID string, inputTokens, outputTokens int) []error {
	var errs []error
	for _, l := range limiters {
		if err := l.Consume(ctx, userID, inputTokens, outputTokens); err != nil {
			errs = append(errs, fmt.Errorf("limiter %q: %w", l.Name(), err))
		}
	}
	return errs
}
