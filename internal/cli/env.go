// Package cli команды migratectl для запуска миграции без HTTP API.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/logger"
	"github.com/rajivgeraev/skillswap-api/internal/migration"
	"github.com/rajivgeraev/skillswap-api/internal/registry"
	"github.com/rajivgeraev/skillswap-api/internal/services/cloudinary"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// env подключения одной команды
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *registry.Registry
	engine   *migration.Engine
	history  *audit.MySQLSink
	closers  []func()
}

// connect загружает конфигурацию и поднимает хранилище, реестр и движок
func connect(ctx context.Context, verbose bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.Setup(cfg.AppEnv, level)

	docStore, closeStore, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, closers: []func(){closeStore}}

	e.registry = registry.New(log, registry.WithAvatarResolver(cloudinary.NewCloudinaryService(cfg, log)))
	e.registry.Initialize(docStore)
	e.registry.EnableMigrationModeFromConfig(cfg)

	sinks := audit.Multi{audit.NewLogSink(log)}
	if cfg.AuditMySQLDSN != "" {
		mysqlSink, err := audit.OpenMySQL(ctx, cfg.AuditMySQLDSN, log)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, func() { mysqlSink.Close() })
		e.history = mysqlSink
		sinks = append(sinks, mysqlSink)
	}

	e.engine = migration.New(docStore, e.registry, log, migration.WithAuditSink(sinks))
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func mark(ok bool) string {
	if ok {
		return okMark
	}
	return failMark
}
