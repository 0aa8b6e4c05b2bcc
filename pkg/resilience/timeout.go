package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

// WithTimeout runs fn on the calling goroutine with a context that expires
// after timeout, so fn has returned by the time WithTimeout does. fn must
// honour ctx. Hitting the deadline is reported as ErrTimeout; a cancelled
// parent context is passed through.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(timeoutCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: parent context cancelled: %w", name, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, err, fmt.Sprintf("%s exceeded %v", name, timeout))
	default:
		return err
	}
}
