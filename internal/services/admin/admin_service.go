// Package admin операторский API миграции: статус, проверки, запуск и остановка.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/migration"
	"github.com/rajivgeraev/skillswap-api/internal/registry"
)

// HistoryReader журнал прошлых запусков
type HistoryReader interface {
	Runs(ctx context.Context, limit int) ([]audit.RunRecord, error)
	Batches(ctx context.Context, runID string) ([]audit.BatchRecord, error)
}

// RunRequest параметры запуска от оператора. Пустые поля берутся из конфигурации.
type RunRequest struct {
	Collection           string  `json:"collection"`
	Transform            string  `json:"transform,omitempty"`
	BatchSize            int     `json:"batchSize,omitempty"`
	MaxConcurrentBatches int     `json:"maxConcurrentBatches,omitempty"`
	RateLimit            string  `json:"rateLimit,omitempty"`
	MaxRetries           *int    `json:"maxRetries,omitempty"`
	ErrorThreshold       float64 `json:"errorThreshold,omitempty"`
	MinSampleSize        int     `json:"minSampleSize,omitempty"`
	ZeroDowntime         *bool   `json:"zeroDowntime,omitempty"`
	DryRun               bool    `json:"dryRun,omitempty"`
	DisableRollback      bool    `json:"disableRollback,omitempty"`
}

// StatusResponse сводный статус реестра и движка
type StatusResponse struct {
	Registry  registry.Status    `json:"registry"`
	Migration migration.Progress `json:"migration"`
}

// AdminService управляет миграцией по запросам оператора
type AdminService struct {
	registry *registry.Registry
	engine   *migration.Engine
	defaults migration.Options
	history  HistoryReader
	logger   zerolog.Logger

	// runCtx живет дольше HTTP-запроса, запуск идет в фоне
	runCtx context.Context
	wg     sync.WaitGroup
}

// NewAdminService создает новый экземпляр AdminService
func NewAdminService(ctx context.Context, reg *registry.Registry, engine *migration.Engine, defaults migration.Options, history HistoryReader, logger zerolog.Logger) *AdminService {
	return &AdminService{
		registry: reg,
		engine:   engine,
		defaults: defaults,
		history:  history,
		logger:   logger.With().Str("service", "admin").Logger(),
		runCtx:   ctx,
	}
}

// Status возвращает состояние реестра и движка
func (s *AdminService) Status() StatusResponse {
	return StatusResponse{
		Registry:  s.registry.Status(),
		Migration: s.engine.Progress(),
	}
}

// Options собирает параметры запуска поверх значений по умолчанию
func (s *AdminService) Options(req RunRequest, operatorID string) (migration.Options, error) {
	opts := s.defaults
	opts.Operator = operatorID
	if req.BatchSize != 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.MaxConcurrentBatches != 0 {
		opts.MaxConcurrentBatches = req.MaxConcurrentBatches
	}
	if req.RateLimit != "" {
		d, err := time.ParseDuration(req.RateLimit)
		if err != nil {
			return opts, fmt.Errorf("%w: rateLimit %q", compat.ErrInvalidArgument, req.RateLimit)
		}
		opts.RateLimit = d
	}
	if req.MaxRetries != nil {
		opts.MaxRetries = *req.MaxRetries
	}
	if req.ErrorThreshold != 0 {
		opts.ErrorThreshold = req.ErrorThreshold
	}
	if req.MinSampleSize != 0 {
		opts.MinSampleSize = req.MinSampleSize
	}
	if req.ZeroDowntime != nil {
		opts.EnableZeroDowntime = *req.ZeroDowntime
	}
	opts.DryRun = req.DryRun
	opts.DisableRollback = req.DisableRollback
	return opts, nil
}

// StartRun проверяет условия и запускает миграцию в фоне. done получает итог.
func (s *AdminService) StartRun(ctx context.Context, req RunRequest, operatorID string) (<-chan *migration.Result, error) {
	if req.Collection == "" {
		return nil, fmt.Errorf("%w: не указана коллекция", compat.ErrInvalidArgument)
	}
	name := req.Transform
	if name == "" {
		name = req.Collection
	}
	transform, err := migration.TransformFor(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", compat.ErrInvalidArgument, err)
	}
	opts, err := s.Options(req, operatorID)
	if err != nil {
		return nil, err
	}

	if s.engine.Progress().Running {
		return nil, migration.ErrRunInProgress
	}
	if report := s.engine.CheckPrerequisites(ctx, req.Collection); !report.OK() {
		return nil, fmt.Errorf("%w: %v", migration.ErrPrerequisites, report.Errors)
	}

	done := make(chan *migration.Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		result, err := s.engine.ExecuteMigration(s.runCtx, req.Collection, transform, opts)
		if err != nil {
			s.logger.Error().Err(err).Str("collection", req.Collection).Msg("❌ Миграция не запущена")
			return
		}
		done <- result
	}()

	s.logger.Info().Str("collection", req.Collection).Str("operator", operatorID).Msg("Миграция запущена оператором")
	return done, nil
}

// EmergencyStop аварийно останавливает текущий запуск
func (s *AdminService) EmergencyStop(reason, operatorID string) error {
	if reason == "" {
		reason = "остановлено оператором"
	}
	if !s.engine.TriggerEmergencyStop(fmt.Sprintf("%s (%s)", reason, operatorID)) {
		return migration.ErrNoActiveRun
	}
	return nil
}

// Shutdown плавно останавливает текущий запуск и возвращает его итог
func (s *AdminService) Shutdown(ctx context.Context) (*migration.Result, error) {
	return s.engine.RequestGracefulShutdown(ctx)
}

// SetMigrationMode переключает режим двойного формата
func (s *AdminService) SetMigrationMode(enabled bool) registry.Status {
	if enabled {
		s.registry.EnableMigrationMode()
	} else {
		s.registry.DisableMigrationMode()
	}
	return s.registry.Status()
}

// History возвращает последние запуски из журнала
func (s *AdminService) History(ctx context.Context, limit int) ([]audit.RunRecord, error) {
	if s.history == nil {
		return nil, errHistoryDisabled
	}
	return s.history.Runs(ctx, limit)
}

// RunBatches возвращает пакеты запуска из журнала
func (s *AdminService) RunBatches(ctx context.Context, runID string) ([]audit.BatchRecord, error) {
	if s.history == nil {
		return nil, errHistoryDisabled
	}
	return s.history.Batches(ctx, runID)
}

// Wait дожидается фоновых запусков
func (s *AdminService) Wait() {
	s.wg.Wait()
}

var errHistoryDisabled = errors.New("журнал миграции не настроен (AUDIT_MYSQL_DSN)")
