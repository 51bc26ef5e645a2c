package compat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// RunFunc выполняет запрос с заданными условиями
type RunFunc func(ctx context.Context, where []store.Constraint) ([]store.Document, error)

// FallbackQuery запрос в две ступени: сначала по современным полям, затем по устаревшим.
// Устаревший запрос выполняется, если основной завершился ошибкой или ничего не нашел.
type FallbackQuery struct {
	Primary  []store.Constraint
	Fallback []store.Constraint
}

// Run выполняет стратегию. В режиме двойного чтения выполняются обе ступени,
// результаты объединяются по ID.
func (f FallbackQuery) Run(ctx context.Context, dualRead bool, run RunFunc) ([]store.Document, error) {
	if dualRead {
		return f.runBoth(ctx, run)
	}

	primary, primaryErr := run(ctx, f.Primary)
	if primaryErr == nil && len(primary) > 0 {
		return primary, nil
	}
	if len(f.Fallback) == 0 {
		return primary, primaryErr
	}

	fallback, fallbackErr := run(ctx, f.Fallback)
	if fallbackErr != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("основной и резервный запросы не выполнены: %w", errors.Join(primaryErr, fallbackErr))
		}
		// основной запрос выполнился, но пуст: ошибка резервного не скрывает пустой результат
		return primary, nil
	}
	return fallback, nil
}

func (f FallbackQuery) runBoth(ctx context.Context, run RunFunc) ([]store.Document, error) {
	primary, primaryErr := run(ctx, f.Primary)
	if len(f.Fallback) == 0 {
		return primary, primaryErr
	}
	fallback, fallbackErr := run(ctx, f.Fallback)

	switch {
	case primaryErr != nil && fallbackErr != nil:
		return nil, fmt.Errorf("основной и резервный запросы не выполнены: %w", errors.Join(primaryErr, fallbackErr))
	case primaryErr != nil:
		return fallback, nil
	case fallbackErr != nil:
		return primary, nil
	}
	return MergeByID(primary, fallback), nil
}
