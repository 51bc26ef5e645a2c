package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

type stopKind int

const (
	stopEmergency stopKind = iota + 1
	stopShutdown
)

// run состояние одного запуска
type run struct {
	id         string
	collection string
	opts       Options
	total      int64
	sample     int64
	started    time.Time
	snapshots  *snapshots

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	result   *Result

	retries       atomic.Int64
	failedCommits atomic.Int64
	healthPauses  atomic.Int64

	mu        sync.Mutex
	emergency bool
	shutdown  bool
	reason    string
	processed int64
	succeeded int64
	skipped   int64
	failed    int64
	batches   int
	batchTime time.Duration
	maxBatch  time.Duration
	errors    []DocumentError
}

func newRun(collection string, opts Options) *run {
	return &run{
		id:         uuid.NewString(),
		collection: collection,
		opts:       opts,
		started:    time.Now().UTC(),
		snapshots:  newSnapshots(collection),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		errors:     []DocumentError{},
	}
}

// setTotal запоминает размер коллекции. Если коллекция не больше
// минимальной выборки, доля ошибок проверяется уже после первого пакета,
// иначе остановка не успела бы сработать до конца запуска.
func (r *run) setTotal(total int64) {
	r.total = total
	r.sample = int64(r.opts.MinSampleSize)
	if total > 0 && total <= r.sample {
		r.sample = min(int64(r.opts.BatchSize), total)
	}
	if r.sample < 1 {
		r.sample = 1
	}
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// requestStop запрещает запуск новых пакетов. Возвращает false, если
// остановка этого вида уже была запрошена.
func (r *run) requestStop(kind stopKind, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(kind, reason)
}

func (r *run) stopLocked(kind stopKind, reason string) bool {
	switch kind {
	case stopEmergency:
		if r.emergency {
			return false
		}
		r.emergency = true
		r.reason = reason
	case stopShutdown:
		if r.shutdown {
			return false
		}
		r.shutdown = true
	}
	r.stopOnce.Do(func() { close(r.stop) })
	return true
}

func (r *run) errorRateLocked() float64 {
	if r.processed == 0 {
		return 0
	}
	return float64(r.failed) / float64(r.processed)
}

// settle учитывает завершенный пакет. Доля ошибок считается накопительно
// за весь запуск и проверяется после набора минимальной выборки.
func (r *run) settle(b *batch) (tripped bool, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	migrated, skipped, failed := b.counts()
	r.processed += int64(len(b.outcomes))
	r.succeeded += int64(migrated)
	r.skipped += int64(skipped)
	r.failed += int64(failed)
	r.errors = append(r.errors, b.errors...)
	r.batches++

	took := b.finished.Sub(b.started)
	r.batchTime += took
	if took > r.maxBatch {
		r.maxBatch = took
	}

	rate = r.errorRateLocked()
	if r.processed >= r.sample && rate > r.opts.ErrorThreshold {
		tripped = r.stopLocked(stopEmergency, fmt.Sprintf(
			"доля ошибок %.2f%% превысила порог %.2f%% после %d документов",
			rate*100, r.opts.ErrorThreshold*100, r.processed))
	}
	return tripped, rate
}

func (r *run) addError(e DocumentError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
}

// batch один пакет документов из непрерывного диапазона курсора
type batch struct {
	id        string
	seq       int
	docs      []store.Document
	outcomes  []audit.DocumentOutcome
	errors    []DocumentError
	committed bool
	started   time.Time
	finished  time.Time
}

func newBatch(seq int, docs []store.Document) *batch {
	return &batch{
		id:       uuid.NewString(),
		seq:      seq,
		docs:     docs,
		outcomes: make([]audit.DocumentOutcome, 0, len(docs)),
	}
}

func (b *batch) firstID() string {
	if len(b.docs) == 0 {
		return ""
	}
	return b.docs[0].ID
}

func (b *batch) lastID() string {
	if len(b.docs) == 0 {
		return ""
	}
	return b.docs[len(b.docs)-1].ID
}

func (b *batch) record(id, status string, attempts int, err error) {
	o := audit.DocumentOutcome{ID: id, Status: status, Attempts: attempts}
	if err != nil {
		o.Error = err.Error()
		b.errors = append(b.errors, DocumentError{
			DocumentID: id,
			BatchID:    b.id,
			Attempts:   attempts,
			Message:    err.Error(),
		})
	}
	b.outcomes = append(b.outcomes, o)
}

// failMigrated помечает несохраненные документы пакета как ошибочные
func (b *batch) failMigrated(err error) {
	for i := range b.outcomes {
		o := &b.outcomes[i]
		if o.Status != audit.OutcomeMigrated {
			continue
		}
		o.Status = audit.OutcomeFailed
		o.Error = err.Error()
		b.errors = append(b.errors, DocumentError{
			DocumentID: o.ID,
			BatchID:    b.id,
			Attempts:   o.Attempts,
			Message:    "ошибка записи пакета: " + err.Error(),
		})
	}
}

func (b *batch) counts() (migrated, skipped, failed int) {
	for _, o := range b.outcomes {
		switch o.Status {
		case audit.OutcomeMigrated:
			migrated++
		case audit.OutcomeSkipped:
			skipped++
		case audit.OutcomeFailed:
			failed++
		}
	}
	return migrated, skipped, failed
}

func (b *batch) auditRecord(r *run) audit.BatchRecord {
	return audit.BatchRecord{
		RunID:      r.id,
		BatchID:    b.id,
		Collection: r.collection,
		Sequence:   b.seq,
		FirstID:    b.firstID(),
		LastID:     b.lastID(),
		Committed:  b.committed,
		DryRun:     r.opts.DryRun,
		Outcomes:   b.outcomes,
		StartedAt:  b.started,
		FinishedAt: b.finished,
	}
}

// processBatch преобразует документы пакета и записывает их одной атомарной
// операцией. Ошибка возвращается только при сбое записи, требующем отката.
func (e *Engine) processBatch(ctx context.Context, r *run, b *batch, transform Transform) error {
	if r.stopped() {
		return nil
	}
	b.started = time.Now()

	ops := make([]store.WriteOp, 0, len(b.docs))
	preImages := make(map[string]map[string]any, len(b.docs))
	for _, doc := range b.docs {
		preImage := store.CloneData(doc.Data)

		data, attempts, err := e.transformDocument(ctx, r, doc, transform)
		switch {
		case errors.Is(err, ErrSkipDocument):
			b.record(doc.ID, audit.OutcomeSkipped, attempts, nil)
		case err != nil:
			b.record(doc.ID, audit.OutcomeFailed, attempts, err)
		default:
			ops = append(ops, store.WriteOp{
				Kind:       store.WriteSet,
				Collection: r.collection,
				ID:         doc.ID,
				Data:       data,
			})
			preImages[doc.ID] = preImage
			b.record(doc.ID, audit.OutcomeMigrated, attempts, nil)
		}
	}

	var commitErr error
	if len(ops) > 0 && !r.opts.DryRun {
		err := e.commit(ctx, r, ops)
		switch {
		case err == nil:
			b.committed = true
			r.snapshots.add(preImages)
		case errors.Is(err, store.ErrPermanentWrite):
			r.failedCommits.Add(1)
			b.failMigrated(err)
			e.logger.Error().Err(err).Str("batch_id", b.id).Int("sequence", b.seq).
				Msg("❌ Хранилище отклонило пакет, документы помечены как ошибочные")
		default:
			r.failedCommits.Add(1)
			b.failMigrated(err)
			r.snapshots.add(preImages)
			commitErr = fmt.Errorf("пакет %d (%s..%s): %w", b.seq, b.firstID(), b.lastID(), err)
		}
	}
	b.finished = time.Now()

	tripped, rate := r.settle(b)
	e.recordBatch(r, b)
	e.events.publish(e.event(r, EventBatchCompleted, b.seq, ""))

	if tripped {
		e.logger.Error().Str("run_id", r.id).Float64("error_rate", rate).
			Msg("🛑 Аварийная остановка миграции: превышен порог ошибок")
		e.events.publish(e.event(r, EventStopRequested, b.seq, "превышен порог ошибок"))
	}
	return commitErr
}

// transformDocument применяет преобразование с повторами и проверяет результат
func (e *Engine) transformDocument(ctx context.Context, r *run, doc store.Document, transform Transform) (map[string]any, int, error) {
	var data map[string]any
	attempts, err := retry(ctx, r.opts.MaxRetries, newBackoff(r.opts), retryableTransform, func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("паника в преобразовании: %v", p)
			}
		}()
		data, err = transform(store.Document{ID: doc.ID, Data: store.CloneData(doc.Data)})
		return err
	})
	r.retries.Add(int64(attempts - 1))

	if err != nil {
		return nil, attempts, err
	}
	if data == nil {
		return nil, attempts, ErrSkipDocument
	}
	if r.opts.Validate != nil {
		if err := r.opts.Validate(data); err != nil {
			return nil, attempts, fmt.Errorf("документ не прошел проверку: %w", err)
		}
	}
	return data, attempts, nil
}

// commit записывает пакет. Отмена контекста не прерывает запись:
// пакет должен либо записаться, либо завершиться ошибкой.
func (e *Engine) commit(ctx context.Context, r *run, ops []store.WriteOp) error {
	writeCtx := context.WithoutCancel(ctx)
	attempts, err := retry(writeCtx, r.opts.MaxRetries, newBackoff(r.opts), retryableWrite, func() error {
		return e.store.BatchWrite(writeCtx, ops)
	})
	r.retries.Add(int64(attempts - 1))
	return err
}

func (e *Engine) recordBatch(r *run, b *batch) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := e.sink.RecordBatch(ctx, b.auditRecord(r)); err != nil {
		e.logger.Warn().Err(err).Str("batch_id", b.id).Msg("⚠️ Не удалось записать пакет в журнал")
	}
}
