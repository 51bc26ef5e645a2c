package migration

import (
	"fmt"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/config"
)

// Options параметры одного запуска миграции
type Options struct {
	BatchSize            int
	MaxConcurrentBatches int
	// RateLimit минимальная пауза между запусками пакетов, 0 без ограничения
	RateLimit time.Duration
	// MaxRetries число повторов на документ и на запись пакета, 0 без повторов
	MaxRetries int
	// ErrorThreshold доля ошибок, после превышения которой запуск аварийно останавливается
	ErrorThreshold float64
	// MinSampleSize сколько документов обработать, прежде чем оценивать долю ошибок
	MinSampleSize  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	EnableZeroDowntime bool
	HealthCheckRetries int
	HealthCheckDelay   time.Duration

	// Validate проверяет документ после преобразования
	Validate        func(data map[string]any) error
	DryRun          bool
	DisableRollback bool
	// Operator кто запустил миграцию, попадает в журнал
	Operator string
}

// DefaultOptions параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		BatchSize:            50,
		MaxConcurrentBatches: 2,
		RateLimit:            100 * time.Millisecond,
		MaxRetries:           3,
		ErrorThreshold:       0.05,
		MinSampleSize:        100,
		InitialBackoff:       100 * time.Millisecond,
		MaxBackoff:           5 * time.Second,
		HealthCheckRetries:   5,
		HealthCheckDelay:     2 * time.Second,
	}
}

// OptionsFromConfig параметры из переменных окружения MIGRATION_*
func OptionsFromConfig(cfg config.MigrationConfig) Options {
	opts := DefaultOptions()
	opts.BatchSize = cfg.BatchSize
	opts.MaxConcurrentBatches = cfg.MaxConcurrentBatches
	opts.RateLimit = cfg.RateLimit
	opts.MaxRetries = cfg.MaxRetries
	opts.ErrorThreshold = cfg.ErrorThreshold
	opts.MinSampleSize = cfg.MinSampleSize
	opts.EnableZeroDowntime = cfg.Enabled
	return opts.withDefaults()
}

// withDefaults заполняет нулевые значения. RateLimit и MaxRetries
// со значением 0 означают отсутствие паузы и повторов.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BatchSize == 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxConcurrentBatches == 0 {
		o.MaxConcurrentBatches = def.MaxConcurrentBatches
	}
	if o.ErrorThreshold == 0 {
		o.ErrorThreshold = def.ErrorThreshold
	}
	if o.MinSampleSize == 0 {
		o.MinSampleSize = def.MinSampleSize
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.HealthCheckRetries == 0 {
		o.HealthCheckRetries = def.HealthCheckRetries
	}
	if o.HealthCheckDelay == 0 {
		o.HealthCheckDelay = def.HealthCheckDelay
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.BatchSize < 0:
		return fmt.Errorf("%w: размер пакета %d", compat.ErrInvalidArgument, o.BatchSize)
	case o.MaxConcurrentBatches < 0:
		return fmt.Errorf("%w: число параллельных пакетов %d", compat.ErrInvalidArgument, o.MaxConcurrentBatches)
	case o.RateLimit < 0:
		return fmt.Errorf("%w: отрицательная пауза между пакетами", compat.ErrInvalidArgument)
	case o.MaxRetries < 0:
		return fmt.Errorf("%w: число повторов %d", compat.ErrInvalidArgument, o.MaxRetries)
	case o.ErrorThreshold < 0 || o.ErrorThreshold > 1:
		return fmt.Errorf("%w: порог ошибок %.3f вне диапазона (0, 1]", compat.ErrInvalidArgument, o.ErrorThreshold)
	case o.MinSampleSize < 0 || o.HealthCheckRetries < 0:
		return fmt.Errorf("%w: отрицательные параметры проверки", compat.ErrInvalidArgument)
	case o.InitialBackoff < 0 || o.HealthCheckDelay < 0:
		return fmt.Errorf("%w: отрицательные задержки", compat.ErrInvalidArgument)
	}
	return nil
}
