package channel

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rpz-tools/taskbot/internal/task"
)

// RetryingMessenger retries flaky transport calls with bounded exponential
// backoff before giving up. Telegram rate limits and transient network
// failures usually clear within a couple of attempts.
type RetryingMessenger struct {
	inner    task.Messenger
	maxTries uint
}

func WithMessengerRetry(inner task.Messenger, maxTries int) *RetryingMessenger {
	if maxTries < 1 {
		maxTries = 1
	}
	return &RetryingMessenger{inner: inner, maxTries: uint(maxTries)}
}

func (r *RetryingMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	return retrySend(ctx, r.maxTries, "send", func() (int, error) {
		return r.inner.SendText(ctx, chatID, text)
	})
}

func (r *RetryingMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := retrySend(ctx, r.maxTries, "edit", func() (struct{}, error) {
		return struct{}{}, r.inner.EditText(ctx, chatID, messageID, text)
	})
	return err
}

func (r *RetryingMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := retrySend(ctx, r.maxTries, "delete", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteMessage(ctx, chatID, messageID)
	})
	return err
}

func retrySend[T any](ctx context.Context, maxTries uint, op string, fn func() (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	return backoff.Retry(ctx, fn,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[telegram] %s failed, retrying in %s: %v", op, next, err)
		}))
}
