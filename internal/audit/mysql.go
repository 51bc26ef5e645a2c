package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// MySQLSink хранит журнал миграции в MySQL. Пакеты сохраняются архивом
// CBOR+snappy, запуски отдельной таблицей для быстрых выборок.
type MySQLSink struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NormalizeDSN включает parseTime, без него время не читается в time.Time
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("неверный AUDIT_MYSQL_DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

// OpenMySQL подключается к MySQL и создает таблицы журнала
func OpenMySQL(ctx context.Context, dsn string, logger zerolog.Logger) (*MySQLSink, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MySQL: %w", err)
	}

	// Настройка параметров подключения
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с MySQL: %w", err)
	}

	s := NewMySQLSink(db, logger)
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Msg("✅ Журнал миграции подключен к MySQL")
	return s, nil
}

// NewMySQLSink создает приемник поверх готового подключения
func NewMySQLSink(db *sql.DB, logger zerolog.Logger) *MySQLSink {
	return &MySQLSink{db: db, logger: logger.With().Str("component", "audit_mysql").Logger()}
}

// Close закрывает подключение
func (s *MySQLSink) Close() error {
	return s.db.Close()
}

func (s *MySQLSink) createTables(ctx context.Context) error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS migration_run_log (
		run_id VARCHAR(36) PRIMARY KEY,
		collection VARCHAR(255) NOT NULL,
		state VARCHAR(32) NOT NULL,
		operator VARCHAR(64) NOT NULL DEFAULT '',
		total_processed BIGINT DEFAULT 0,
		succeeded BIGINT DEFAULT 0,
		failed BIGINT DEFAULT 0,
		remaining BIGINT DEFAULT 0,
		rollback_executed BOOLEAN DEFAULT FALSE,
		emergency_stop BOOLEAN DEFAULT FALSE,
		reason TEXT,
		started_at TIMESTAMP(6) NOT NULL,
		finished_at TIMESTAMP(6) NULL
	)`, `
	CREATE TABLE IF NOT EXISTS migration_batch_log (
		batch_id VARCHAR(36) PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		sequence INT NOT NULL,
		collection VARCHAR(255) NOT NULL,
		first_id VARCHAR(255) NOT NULL,
		last_id VARCHAR(255) NOT NULL,
		documents INT NOT NULL,
		failed INT NOT NULL,
		committed BOOLEAN NOT NULL,
		payload MEDIUMBLOB NOT NULL,
		finished_at TIMESTAMP(6) NOT NULL,
		INDEX idx_migration_batch_run (run_id, sequence)
	)`}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ошибка при создании таблиц журнала миграции: %w", err)
		}
	}
	return nil
}

// RecordBatch реализует Sink
func (s *MySQLSink) RecordBatch(ctx context.Context, b BatchRecord) error {
	payload, err := EncodeBatch(b)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO migration_batch_log
		(batch_id, run_id, sequence, collection, first_id, last_id, documents, failed, committed, payload, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		b.BatchID, b.RunID, b.Sequence, b.Collection, b.FirstID, b.LastID,
		len(b.Outcomes), b.Failed(), b.Committed, payload, b.FinishedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи пакета %s в журнал: %w", b.BatchID, err)
	}
	return nil
}

// RecordRun реализует Sink. Повторная запись того же запуска обновляет итог.
func (s *MySQLSink) RecordRun(ctx context.Context, r RunRecord) error {
	query := `
	INSERT INTO migration_run_log
		(run_id, collection, state, operator, total_processed, succeeded, failed, remaining,
		 rollback_executed, emergency_stop, reason, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		state = VALUES(state),
		total_processed = VALUES(total_processed),
		succeeded = VALUES(succeeded),
		failed = VALUES(failed),
		remaining = VALUES(remaining),
		rollback_executed = VALUES(rollback_executed),
		emergency_stop = VALUES(emergency_stop),
		reason = VALUES(reason),
		finished_at = VALUES(finished_at)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.RunID, r.Collection, r.State, r.Operator, r.TotalProcessed, r.Succeeded, r.Failed, r.Remaining,
		r.RollbackExecuted, r.EmergencyStop, r.Reason, r.StartedAt, nullTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("ошибка записи запуска %s в журнал: %w", r.RunID, err)
	}
	return nil
}

// Runs возвращает последние запуски
func (s *MySQLSink) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id, collection, state, operator, total_processed, succeeded, failed, remaining,
		rollback_executed, emergency_stop, COALESCE(reason, ''), started_at, finished_at
	FROM migration_run_log
	ORDER BY started_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала запусков: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var (
			r        RunRecord
			finished sql.NullTime
		)
		if err := rows.Scan(&r.RunID, &r.Collection, &r.State, &r.Operator, &r.TotalProcessed,
			&r.Succeeded, &r.Failed, &r.Remaining, &r.RollbackExecuted, &r.EmergencyStop,
			&r.Reason, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("ошибка чтения журнала запусков: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Batches возвращает пакеты запуска в порядке обработки
func (s *MySQLSink) Batches(ctx context.Context, runID string) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM migration_batch_log WHERE run_id = ? ORDER BY sequence", runID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пакетов запуска %s: %w", runID, err)
	}
	defer rows.Close()

	batches := []BatchRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ошибка чтения пакетов запуска %s: %w", runID, err)
		}
		b, err := DecodeBatch(payload)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
