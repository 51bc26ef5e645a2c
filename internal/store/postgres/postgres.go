// Package postgres хранилище документов в PostgreSQL: одна таблица (id, data jsonb) на коллекцию.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Store хранилище документов поверх пула соединений pgx
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	tables sync.Map // коллекции, для которых таблица уже создана
}

// Connect создает пул соединений и проверяет подключение
func Connect(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе URL базы данных: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании пула соединений: %w", err)
	}

	if err = pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения: %w", err)
	}

	logger.Info().Msg("✅ Успешное подключение к PostgreSQL")
	return New(pool, logger), nil
}

// New создает хранилище поверх существующего пула
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Close закрывает пул соединений
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get возвращает документ или nil
func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var data map[string]any
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM "+tableName(collection)+" WHERE id = $1", id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("ошибка получения %s/%s: %w", collection, id, err))
	}
	return &store.Document{ID: id, Data: data}, nil
}

// Query выполняет запрос по jsonb-полям
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return []store.Document{}, nil
		}
		return nil, classify(fmt.Errorf("ошибка запроса к %s: %w", q.Collection, err))
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, fmt.Errorf("ошибка чтения документа %s: %w", q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("ошибка чтения %s: %w", q.Collection, err))
	}
	return docs, nil
}

// BatchWrite применяет операции в одной транзакции
func (s *Store) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
		if err := s.ensureTable(ctx, op.Collection); err != nil {
			return err
		}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, op := range ops {
			table := tableName(op.Collection)
			switch op.Kind {
			case store.WriteSet:
				if _, err := tx.Exec(ctx,
					"INSERT INTO "+table+" (id, data) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data",
					op.ID, op.Data); err != nil {
					return err
				}
			case store.WriteUpdate:
				tag, err := tx.Exec(ctx, "UPDATE "+table+" SET data = data || $2::jsonb WHERE id = $1", op.ID, op.Data)
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 0 {
					return fmt.Errorf("%w: документ %s/%s не найден для обновления", store.ErrPermanentWrite, op.Collection, op.ID)
				}
			case store.WriteDelete:
				if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", op.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return classify(fmt.Errorf("ошибка пакетной записи: %w", err))
	}
	return nil
}

// Count возвращает количество документов
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+tableName(collection)).Scan(&n)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("ошибка подсчета %s: %w", collection, err))
	}
	return n, nil
}

// Ping проверяет соединение
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(fmt.Errorf("ошибка при проверке соединения: %w", err))
	}
	return nil
}

// CollectionExists проверяет наличие таблицы коллекции
func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = current_schema() AND table_name = $1
        )
    `, collection).Scan(&exists)
	if err != nil {
		return false, classify(fmt.Errorf("ошибка проверки коллекции %s: %w", collection, err))
	}
	return exists, nil
}

func (s *Store) ensureTable(ctx context.Context, collection string) error {
	if _, ok := s.tables.Load(collection); ok {
		return nil
	}

	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+tableName(collection)+` (
        id TEXT PRIMARY KEY,
        data JSONB NOT NULL
    )`)
	if err != nil {
		return classify(fmt.Errorf("ошибка создания таблицы %s: %w", collection, err))
	}

	s.tables.Store(collection, struct{}{})
	s.logger.Debug().Str("collection", collection).Msg("Таблица коллекции готова")
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// classify помечает ошибку как временную или постоянную по коду PostgreSQL
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrPermanentWrite) || errors.Is(err, store.ErrTransient) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01",
			strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"):
			return fmt.Errorf("%w: %w", store.ErrTransient, err)
		case pgErr.Code == "42501", strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}
	return err
}
