// Package audit сохраняет журнал запусков миграции и обработанных пакетов.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Статусы документа в пакете
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// DocumentOutcome результат обработки одного документа
type DocumentOutcome struct {
	ID       string `cbor:"id" json:"id"`
	Status   string `cbor:"status" json:"status"`
	Attempts int    `cbor:"attempts" json:"attempts"`
	Error    string `cbor:"error,omitempty" json:"error,omitempty"`
}

// BatchRecord запись об одном завершенном пакете
type BatchRecord struct {
	RunID      string            `cbor:"runId" json:"runId"`
	BatchID    string            `cbor:"batchId" json:"batchId"`
	Collection string            `cbor:"collection" json:"collection"`
	Sequence   int               `cbor:"sequence" json:"sequence"`
	FirstID    string            `cbor:"firstId" json:"firstId"`
	LastID     string            `cbor:"lastId" json:"lastId"`
	Committed  bool              `cbor:"committed" json:"committed"`
	DryRun     bool              `cbor:"dryRun" json:"dryRun"`
	Outcomes   []DocumentOutcome `cbor:"outcomes" json:"outcomes"`
	StartedAt  time.Time         `cbor:"startedAt" json:"startedAt"`
	FinishedAt time.Time         `cbor:"finishedAt" json:"finishedAt"`
}

// Failed количество неуспешных документов пакета
func (b BatchRecord) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == OutcomeFailed {
			n++
		}
	}
	return n
}

// RunRecord итог запуска миграции
type RunRecord struct {
	RunID            string    `json:"runId"`
	Collection       string    `json:"collection"`
	State            string    `json:"state"`
	Operator         string    `json:"operator,omitempty"`
	TotalProcessed   int64     `json:"totalProcessed"`
	Succeeded        int64     `json:"succeeded"`
	Failed           int64     `json:"failed"`
	Remaining        int64     `json:"remaining"`
	RollbackExecuted bool      `json:"rollbackExecuted"`
	EmergencyStop    bool      `json:"emergencyStop"`
	Reason           string    `json:"reason,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

// Sink приемник журнала миграции
type Sink interface {
	RecordBatch(ctx context.Context, b BatchRecord) error
	RecordRun(ctx context.Context, r RunRecord) error
}

// Multi рассылает записи во все приемники
type Multi []Sink

// RecordBatch реализует Sink
func (m Multi) RecordBatch(ctx context.Context, b BatchRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordBatch(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordRun реализует Sink
func (m Multi) RecordRun(ctx context.Context, r RunRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordRun(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink пишет журнал в лог
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink создает приемник поверх логгера
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

// RecordBatch реализует Sink
func (s *LogSink) RecordBatch(_ context.Context, b BatchRecord) error {
	s.logger.Info().
		Str("run_id", b.RunID).
		Str("batch_id", b.BatchID).
		Str("collection", b.Collection).
		Int("sequence", b.Sequence).
		Str("first_id", b.FirstID).
		Str("last_id", b.LastID).
		Int("documents", len(b.Outcomes)).
		Int("failed", b.Failed()).
		Bool("committed", b.Committed).
		Bool("dry_run", b.DryRun).
		Dur("took", b.FinishedAt.Sub(b.StartedAt)).
		Msg("Пакет миграции обработан")
	return nil
}

// RecordRun реализует Sink
func (s *LogSink) RecordRun(_ context.Context, r RunRecord) error {
	event := s.logger.Info()
	if r.EmergencyStop || r.RollbackExecuted {
		event = s.logger.Warn()
	}
	event.
		Str("run_id", r.RunID).
		Str("collection", r.Collection).
		Str("state", r.State).
		Str("operator", r.Operator).
		Int64("processed", r.TotalProcessed).
		Int64("failed", r.Failed).
		Int64("remaining", r.Remaining).
		Str("reason", r.Reason).
		Msg("Запуск миграции завершен")
	return nil
}
