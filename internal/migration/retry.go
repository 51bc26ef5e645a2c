package migration

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/normalize"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// backoff экспоненциальная задержка с джиттером
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

func newBackoff(opts Options) backoff {
	return backoff{
		initial:    opts.InitialBackoff,
		max:        opts.MaxBackoff,
		multiplier: 2.0,
		jitter:     0.2,
	}
}

// delay задержка перед повтором attempt (с нуля)
func (b backoff) delay(attempt int) time.Duration {
	d := float64(b.initial) * math.Pow(b.multiplier, float64(attempt))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	if b.jitter > 0 {
		//nolint:gosec // джиттер не требует криптостойкости
		d += d * b.jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = float64(b.initial)
	}
	return time.Duration(d)
}

// sleep ждет задержку или отмену контекста
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry выполняет fn до maxRetries+1 раз, пока ошибка повторяемая.
// Возвращает число попыток и последнюю ошибку.
func retry(ctx context.Context, maxRetries int, b backoff, retryable func(error) bool, fn func() error) (int, error) {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= maxRetries || !retryable(err) {
			return attempt + 1, err
		}
		if sleepErr := sleep(ctx, b.delay(attempt)); sleepErr != nil {
			return attempt + 1, err
		}
	}
}

// retryableTransform ошибки преобразования, которые повтор не исправит
func retryableTransform(err error) bool {
	switch {
	case errors.Is(err, ErrSkipDocument),
		errors.Is(err, normalize.ErrNullEntity),
		errors.Is(err, normalize.ErrEmptyParticipants),
		errors.Is(err, compat.ErrInvalidArgument),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// retryableWrite повторяются только временные ошибки хранилища
func retryableWrite(err error) bool {
	return errors.Is(err, store.ErrTransient)
}
