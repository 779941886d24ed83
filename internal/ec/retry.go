package ec

import (
	"context"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
	"golang.org/x/sys/unix"
)

const (
	maxAttempts  = 3
	retryBackoff = 10 * time.Millisecond
)

// withRetry runs op until it succeeds, fails permanently or the attempt
// budget is spent. Backoff grows linearly with the attempt number.
func withRetry(ctx context.Context, what string, op func() error) error {
	errFactory := errors.New()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			if errors.CodeOf(err) != "" {
				return err
			}
			return errFactory.Wrap(ErrIO, err)
		}

		lastErr = err
		logger.Debug().
			Str("op", what).
			Int("attempt", attempt).
			Err(err).
			Msg("Transient EC error")

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return errFactory.Wrap(ErrIO, errors.Join(lastErr, ctx.Err()))
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}

	return errFactory.WrapWithData(ErrIO, lastErr, what)
}

func isTransient(err error) bool {
	if errors.HasCode(err, ErrBusy) {
		return true
	}

	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.EINTR)
}
