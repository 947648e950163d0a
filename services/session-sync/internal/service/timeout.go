package service

import (
	"context"
	"errors"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
)

// WithTimeout выполняет op с ограничением по времени.
// Если op не завершилась за d, возвращается ошибка с кодом TIMEOUT,
// а сама op продолжает работу с отмененным контекстом.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := op(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, timeoutError(d, ctx.Err())
			}
			return zero, r.err
		}
		return r.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(d, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

func timeoutError(d time.Duration, cause error) error {
	return pkgerrors.Wrap(cause, pkgerrors.ErrTimeout, "operation timed out").
		WithDetails("timeout: " + d.String())
}
