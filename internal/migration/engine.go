// Package migration переводит документы коллекции в новый формат пакетами,
// пока сервисы совместимости продолжают обслуживать живой трафик.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

const auditTimeout = 5 * time.Second

var (
	// ErrEmergencyStop запуск прерван аварийной остановкой
	ErrEmergencyStop = errors.New("аварийная остановка миграции")
	// ErrRunInProgress движок уже выполняет запуск
	ErrRunInProgress = errors.New("миграция уже выполняется")
	// ErrNoActiveRun нет запуска, который можно остановить
	ErrNoActiveRun = errors.New("нет активного запуска миграции")
	// ErrPrerequisites предварительные условия не выполнены
	ErrPrerequisites = errors.New("предварительные условия миграции не выполнены")
)

// Registry то, что движку нужно от реестра миграции
type Registry interface {
	Initialized() bool
	Healthy(ctx context.Context) bool
}

// PrerequisiteReport результат проверки перед запуском
type PrerequisiteReport struct {
	StoreReachable      bool     `json:"storeReachable"`
	RegistryInitialized bool     `json:"registryInitialized"`
	CollectionExists    bool     `json:"collectionExists"`
	Errors              []string `json:"errors"`
}

// OK все условия выполнены
func (p PrerequisiteReport) OK() bool {
	return p.StoreReachable && p.RegistryInitialized && p.CollectionExists
}

// Progress снимок текущего или последнего запуска
type Progress struct {
	RunID            string  `json:"runId,omitempty"`
	Collection       string  `json:"collection,omitempty"`
	State            State   `json:"state"`
	Running          bool    `json:"running"`
	TotalDocuments   int64   `json:"totalDocuments"`
	Processed        int64   `json:"processed"`
	Failed           int64   `json:"failed"`
	ErrorRate        float64 `json:"errorRate"`
	BatchesProcessed int     `json:"batchesProcessed"`
	StopRequested    bool    `json:"stopRequested"`
	StopReason       string  `json:"stopReason,omitempty"`
	LastResult       *Result `json:"lastResult,omitempty"`
}

// EngineOption настройка движка
type EngineOption func(*Engine)

// WithAuditSink задает журнал пакетов и запусков
func WithAuditSink(sink audit.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// Engine движок миграции. Одновременно выполняется не больше одного запуска.
type Engine struct {
	store    store.Store
	registry Registry
	sink     audit.Sink
	logger   zerolog.Logger
	events   *publisher

	state atomic.Value // State

	mu      sync.Mutex
	current *run
	last    *Result
}

// New создает движок миграции
func New(s store.Store, registry Registry, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		registry: registry,
		logger:   logger.With().Str("component", "migration").Logger(),
		events:   newPublisher(),
	}
	e.state.Store(StateIdle)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State текущее состояние движка
func (e *Engine) State() State {
	return e.state.Load().(State)
}

func (e *Engine) setState(s State) {
	e.state.Store(s)
}

// Subscribe подписывает на события миграции. Вызовите cancel, чтобы отписаться.
func (e *Engine) Subscribe(buffer int) (events <-chan Event, cancel func()) {
	return e.events.subscribe(buffer)
}

// CheckPrerequisites проверяет хранилище, реестр и коллекцию
func (e *Engine) CheckPrerequisites(ctx context.Context, collection string) PrerequisiteReport {
	report := PrerequisiteReport{Errors: []string{}}

	if err := e.store.Ping(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("хранилище недоступно: %v", err))
	} else {
		report.StoreReachable = true
	}

	if e.registry != nil && e.registry.Initialized() {
		report.RegistryInitialized = true
	} else {
		report.Errors = append(report.Errors, "реестр миграции не инициализирован")
	}

	switch {
	case collection == "":
		report.Errors = append(report.Errors, "не указана коллекция")
	case report.StoreReachable:
		exists, err := e.store.CollectionExists(ctx, collection)
		switch {
		case err != nil:
			report.Errors = append(report.Errors, fmt.Sprintf("ошибка проверки коллекции %s: %v", collection, err))
		case !exists:
			report.Errors = append(report.Errors, fmt.Sprintf("коллекция %s не найдена", collection))
		default:
			report.CollectionExists = true
		}
	}
	return report
}

// ValidatePrerequisites сообщает, можно ли начинать миграцию коллекции
func (e *Engine) ValidatePrerequisites(ctx context.Context, collection string) bool {
	report := e.CheckPrerequisites(ctx, collection)
	if !report.OK() {
		e.logger.Warn().Str("collection", collection).Strs("errors", report.Errors).
			Msg("⚠️ Предварительные условия миграции не выполнены")
	}
	return report.OK()
}

// ExecuteMigration переводит коллекцию в новый формат. Ошибка возвращается,
// только если запуск не начался; итог начатого запуска всегда в Result.
func (e *Engine) ExecuteMigration(ctx context.Context, collection string, transform Transform, opts Options) (*Result, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: пустое имя коллекции", compat.ErrInvalidArgument)
	}
	if transform == nil {
		return nil, fmt.Errorf("%w: не задано преобразование", compat.ErrInvalidArgument)
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	r := newRun(collection, opts)
	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	e.current = r
	e.mu.Unlock()

	e.setState(StateValidating)
	if !e.ValidatePrerequisites(ctx, collection) {
		e.release(r, nil, StateIdle)
		return nil, fmt.Errorf("%w: коллекция %s", ErrPrerequisites, collection)
	}

	total, err := e.store.Count(ctx, collection)
	if err != nil {
		e.release(r, nil, StateIdle)
		return nil, fmt.Errorf("ошибка подсчета документов %s: %w", collection, err)
	}
	r.setTotal(total)

	e.setState(StateRunning)
	e.logger.Info().
		Str("run_id", r.id).
		Str("collection", collection).
		Int64("total", total).
		Int("batch_size", opts.BatchSize).
		Int("concurrency", opts.MaxConcurrentBatches).
		Bool("dry_run", opts.DryRun).
		Msg("🚀 Запуск миграции")
	e.events.publish(e.event(r, EventRunStarted, 0, ""))

	commitErr := e.dispatch(ctx, r, transform)
	result := e.finish(ctx, r, commitErr)
	e.release(r, result, result.State)
	return result, nil
}

// TriggerEmergencyStop останавливает текущий запуск: пакеты в работе
// завершаются, новые не начинаются. Возвращает false без активного запуска.
func (e *Engine) TriggerEmergencyStop(reason string) bool {
	r := e.active()
	if r == nil {
		return false
	}
	if reason == "" {
		reason = "остановлено оператором"
	}
	if r.requestStop(stopEmergency, reason) {
		e.logger.Warn().Str("run_id", r.id).Str("reason", reason).Msg("🛑 Аварийная остановка миграции")
		e.events.publish(e.event(r, EventStopRequested, 0, reason))
	}
	return true
}

// RequestGracefulShutdown дожидается пакетов в работе, не начинает новые
// и возвращает итог запуска.
func (e *Engine) RequestGracefulShutdown(ctx context.Context) (*Result, error) {
	r := e.active()
	if r == nil {
		return nil, ErrNoActiveRun
	}
	if r.requestStop(stopShutdown, "") {
		e.logger.Info().Str("run_id", r.id).Msg("Запрошена плавная остановка миграции")
		e.events.publish(e.event(r, EventStopRequested, 0, "плавная остановка"))
	}

	select {
	case <-r.done:
		// запуск не прошел проверку и не начинался
		if r.result == nil {
			return nil, ErrNoActiveRun
		}
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Progress возвращает снимок текущего запуска или итог последнего
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	r, last := e.current, e.last
	e.mu.Unlock()

	p := Progress{State: e.State(), LastResult: last}
	if r == nil {
		if last != nil {
			p.RunID = last.RunID
			p.Collection = last.Collection
			p.TotalDocuments = last.TotalDocuments
			p.Processed = last.TotalProcessed
			p.Failed = last.Failed
			p.ErrorRate = last.ErrorRate
			p.BatchesProcessed = last.BatchesProcessed
			p.StopReason = last.EmergencyStopReason
		}
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p.RunID = r.id
	p.Collection = r.collection
	p.Running = true
	p.TotalDocuments = r.total
	p.Processed = r.processed
	p.Failed = r.failed
	p.ErrorRate = r.errorRateLocked()
	p.BatchesProcessed = r.batches
	p.StopRequested = r.emergency || r.shutdown
	p.StopReason = r.reason
	return p
}

func (e *Engine) active() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) release(r *run, result *Result, state State) {
	e.mu.Lock()
	r.result = result
	if result != nil {
		e.last = result
	}
	e.current = nil
	e.setState(state)
	e.mu.Unlock()
	close(r.done)
}

// dispatch читает коллекцию страницами по курсору ID и запускает пакеты
// с ограничением параллельности и частоты.
func (e *Engine) dispatch(ctx context.Context, r *run, transform Transform) error {
	limit := rate.Inf
	if r.opts.RateLimit > 0 {
		limit = rate.Every(r.opts.RateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrentBatches)

	cursor := ""
	for seq := 1; ; seq++ {
		if r.stopped() || gctx.Err() != nil {
			break
		}
		if r.opts.EnableZeroDowntime && !e.awaitHealthy(gctx, r) {
			if gctx.Err() == nil && r.requestStop(stopEmergency, "сервисы совместимости не прошли проверку здоровья") {
				e.logger.Error().Str("run_id", r.id).Msg("🛑 Аварийная остановка миграции: сервисы нездоровы")
				e.events.publish(e.event(r, EventStopRequested, seq, "сервисы нездоровы"))
			}
			break
		}
		if err := limiter.Wait(gctx); err != nil {
			break
		}

		docs, err := e.readPage(gctx, r, cursor)
		if err != nil {
			if gctx.Err() == nil {
				reason := fmt.Sprintf("ошибка чтения коллекции: %v", err)
				r.requestStop(stopEmergency, reason)
				r.addError(DocumentError{Message: reason})
			}
			break
		}
		if len(docs) == 0 {
			break
		}
		cursor = docs[len(docs)-1].ID

		b := newBatch(seq, docs)
		// Go ждет, пока освободится место среди MaxConcurrentBatches пакетов
		g.Go(func() error {
			return e.processBatch(gctx, r, b, transform)
		})

		if len(docs) < r.opts.BatchSize {
			break
		}
	}
	return g.Wait()
}

func (e *Engine) readPage(ctx context.Context, r *run, cursor string) ([]store.Document, error) {
	var docs []store.Document
	attempts, err := retry(ctx, r.opts.MaxRetries, newBackoff(r.opts), retryableWrite, func() error {
		var err error
		docs, err = e.store.Query(ctx, store.Query{
			Collection: r.collection,
			StartAfter: cursor,
			Limit:      r.opts.BatchSize,
		})
		return err
	})
	r.retries.Add(int64(attempts - 1))
	return docs, err
}

// awaitHealthy ждет здоровья сервисов совместимости перед пакетом
func (e *Engine) awaitHealthy(ctx context.Context, r *run) bool {
	if e.registry == nil {
		return true
	}
	for attempt := 0; ; attempt++ {
		if e.registry.Healthy(ctx) {
			return true
		}
		if attempt >= r.opts.HealthCheckRetries {
			return false
		}
		r.healthPauses.Add(1)
		e.logger.Warn().Str("run_id", r.id).Int("attempt", attempt+1).Dur("delay", r.opts.HealthCheckDelay).
			Msg("⚠️ Сервисы совместимости нездоровы, миграция приостановлена")
		e.events.publish(e.event(r, EventHealthPause, 0, "сервисы нездоровы"))
		if err := sleep(ctx, r.opts.HealthCheckDelay); err != nil {
			return false
		}
	}
}

// rollback восстанавливает все документы, записанные за запуск
func (e *Engine) rollback(ctx context.Context, r *run) []error {
	writeCtx := context.WithoutCancel(ctx)
	chunks := r.snapshots.restoreOps(r.opts.BatchSize)

	e.logger.Warn().Str("run_id", r.id).Int("documents", r.snapshots.len()).
		Msg("↩️ Откат миграции к исходным документам")

	var errs []error
	for _, ops := range chunks {
		_, err := retry(writeCtx, r.opts.MaxRetries, newBackoff(r.opts), retryableWrite, func() error {
			return e.store.BatchWrite(writeCtx, ops)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("откат %s..%s: %w", ops[0].ID, ops[len(ops)-1].ID, err))
		}
	}
	return errs
}

// finish определяет итоговое состояние, при сбое записи выполняет откат
func (e *Engine) finish(ctx context.Context, r *run, commitErr error) *Result {
	state := StateCompleted
	var rollbackErrs []error
	rolledBack := false

	switch {
	case commitErr != nil && !r.opts.DisableRollback:
		r.requestStop(stopEmergency, fmt.Sprintf("ошибка записи пакета: %v", commitErr))
		r.addError(DocumentError{Message: commitErr.Error()})
		rollbackErrs = e.rollback(ctx, r)
		for _, err := range rollbackErrs {
			r.addError(DocumentError{Message: err.Error()})
		}
		rolledBack = true
		state = StateRolledBack
	case commitErr != nil:
		r.requestStop(stopEmergency, fmt.Sprintf("ошибка записи пакета: %v", commitErr))
		r.addError(DocumentError{Message: commitErr.Error()})
		state = StateEmergencyStopped
	}

	r.mu.Lock()
	if state == StateCompleted {
		switch {
		case r.emergency:
			state = StateEmergencyStopped
		case r.shutdown || ctx.Err() != nil:
			state = StateGracefullyStopped
			if err := ctx.Err(); err != nil && !r.shutdown {
				r.errors = append(r.errors, DocumentError{Message: fmt.Sprintf("запуск прерван: %v", err)})
			}
		}
	}

	finished := time.Now().UTC()
	duration := finished.Sub(r.started)
	result := &Result{
		RunID:                  r.id,
		Collection:             r.collection,
		State:                  state,
		Success:                state == StateCompleted,
		TotalDocuments:         r.total,
		TotalProcessed:         r.processed,
		Succeeded:              r.succeeded,
		Skipped:                r.skipped,
		Failed:                 r.failed,
		ErrorRate:              r.errorRateLocked(),
		Errors:                 r.errors,
		BatchesProcessed:       r.batches,
		DryRun:                 r.opts.DryRun,
		RollbackExecuted:       rolledBack,
		EmergencyStopTriggered: state == StateEmergencyStopped,
		DataIntegrityPreserved: len(rollbackErrs) == 0,
		PerformanceMetrics: PerformanceMetrics{
			StartedAt:        r.started,
			FinishedAt:       finished,
			Duration:         duration,
			MaxBatchDuration: r.maxBatch,
			Retries:          r.retries.Load(),
			FailedCommits:    r.failedCommits.Load(),
			HealthPauses:     r.healthPauses.Load(),
		},
	}
	if result.EmergencyStopTriggered {
		result.EmergencyStopReason = r.reason
	}
	r.mu.Unlock()

	if r.batches > 0 {
		result.PerformanceMetrics.AverageBatchDuration = r.batchTime / time.Duration(r.batches)
	}
	if secs := duration.Seconds(); secs > 0 {
		result.PerformanceMetrics.DocumentsPerSecond = float64(result.TotalProcessed) / secs
	}
	result.Remaining = max(result.TotalDocuments-result.TotalProcessed, 0)
	if rolledBack {
		result.Remaining = result.TotalDocuments
	}

	e.recordRun(r, result)
	e.events.publish(Event{
		Type:       EventRunFinished,
		RunID:      r.id,
		Collection: r.collection,
		State:      state,
		Total:      result.TotalDocuments,
		Processed:  result.TotalProcessed,
		Failed:     result.Failed,
		ErrorRate:  result.ErrorRate,
		Message:    result.EmergencyStopReason,
	})

	logEvent := e.logger.Info()
	if !result.Success {
		logEvent = e.logger.Warn()
	}
	logEvent.
		Str("run_id", r.id).
		Str("state", string(state)).
		Int64("processed", result.TotalProcessed).
		Int64("failed", result.Failed).
		Int64("remaining", result.Remaining).
		Dur("took", duration).
		Msg("Миграция завершена")
	return result
}

func (e *Engine) recordRun(r *run, result *Result) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	err := e.sink.RecordRun(ctx, audit.RunRecord{
		RunID:            result.RunID,
		Collection:       result.Collection,
		State:            string(result.State),
		Operator:         r.opts.Operator,
		TotalProcessed:   result.TotalProcessed,
		Succeeded:        result.Succeeded,
		Failed:           result.Failed,
		Remaining:        result.Remaining,
		RollbackExecuted: result.RollbackExecuted,
		EmergencyStop:    result.EmergencyStopTriggered,
		Reason:           result.EmergencyStopReason,
		StartedAt:        result.PerformanceMetrics.StartedAt,
		FinishedAt:       result.PerformanceMetrics.FinishedAt,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("run_id", r.id).Msg("⚠️ Не удалось записать запуск в журнал")
	}
}

// event событие с текущими счетчиками запуска
func (e *Engine) event(r *run, t EventType, seq int, message string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Event{
		Type:       t,
		RunID:      r.id,
		Collection: r.collection,
		State:      e.State(),
		Batch:      seq,
		Total:      r.total,
		Processed:  r.processed,
		Failed:     r.failed,
		ErrorRate:  r.errorRateLocked(),
		Message:    message,
	}
}
