package store

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying wraps a RowStore with bounded exponential backoff. After the
// attempt cap the last error is returned to the caller, which logs it and
// abandons the operation; in-memory state is never left half-mutated.
type Retrying struct {
	inner    RowStore
	maxTries uint
}

func WithRetry(inner RowStore, maxTries int) *Retrying {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Retrying{inner: inner, maxTries: uint(maxTries)}
}

func (r *Retrying) Rows(ctx context.Context) ([][]string, error) {
	return retry(ctx, r.maxTries, "rows", func() ([][]string, error) {
		return r.inner.Rows(ctx)
	})
}

func (r *Retrying) Append(ctx context.Context, row []string) error {
	_, err := retry(ctx, r.maxTries, "append", func() (struct{}, error) {
		return struct{}{}, r.inner.Append(ctx, row)
	})
	return err
}

func (r *Retrying) UpdateCell(ctx context.Context, row, col int, value string) error {
	_, err := retry(ctx, r.maxTries, "update cell", func() (struct{}, error) {
		return struct{}{}, r.inner.UpdateCell(ctx, row, col, value)
	})
	return err
}

func (r *Retrying) ColValues(ctx context.Context, col int) ([]string, error) {
	return retry(ctx, r.maxTries, "col values", func() ([]string, error) {
		return r.inner.ColValues(ctx, col)
	})
}

func retry[T any](ctx context.Context, maxTries uint, op string, fn func() (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(ctx, fn,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[store] %s failed, retrying in %s: %v", op, next, err)
		}))
}
