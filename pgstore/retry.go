package pgstore

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// commitBackOff mirrors the teacher's defaultBackOff in pkg/diff/diff.go:
// up to 4 retries of a randomized exponential backoff starting at 1s.
// Grounded on the same "Kong can transiently fail under load" rationale
// applied to a transient Postgres connection error instead.
func commitBackOff() backoff.BackOff {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 1 * time.Second
	exponentialBackoff.Multiplier = 3
	return backoff.WithMaxRetries(exponentialBackoff, 4)
}

// withCommitRetry retries fn on a transient connection error (no
// pgconn.PgError, meaning the driver never got a response back from
// Postgres at all) and treats any error Postgres itself returned — a
// constraint violation, a bad query — as permanent, the same
// retry-vs-permanent split diff.go makes on a Kong API error's status
// code.
func withCommitRetry(fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return backoff.Permanent(err)
		}
		return err
	}, commitBackOff())
}
