package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/logger"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/migration"
	"github.com/rajivgeraev/skillswap-api/internal/registry"
	"github.com/rajivgeraev/skillswap-api/internal/services/admin"
	"github.com/rajivgeraev/skillswap-api/internal/services/cloudinary"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
	"github.com/rajivgeraev/skillswap-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()
	log := logger.Setup(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к хранилищу документов
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	docStore, closeStore, err := db.Connect(connectCtx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка при подключении к хранилищу")
	}
	defer closeStore()

	// Реестр сервисов совместимости
	cloudinaryService := cloudinary.NewCloudinaryService(cfg, log)
	reg := registry.New(log, registry.WithAvatarResolver(cloudinaryService))
	reg.Initialize(docStore)
	reg.EnableMigrationModeFromConfig(cfg)
	if err := reg.StartHealthMonitor(cfg.MigrationConfig.HealthCheckInterval); err != nil {
		log.Fatal().Err(err).Msg("❌ Ошибка запуска мониторинга")
	}
	defer reg.StopHealthMonitor()

	// Журнал миграции
	sinks := audit.Multi{audit.NewLogSink(log)}
	var history admin.HistoryReader
	if cfg.AuditMySQLDSN != "" {
		mysqlSink, err := audit.OpenMySQL(ctx, cfg.AuditMySQLDSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Ошибка подключения к журналу миграции")
		}
		defer mysqlSink.Close()
		sinks = append(sinks, mysqlSink)
		history = mysqlSink
	}

	engine := migration.New(docStore, reg, log, migration.WithAuditSink(sinks))

	// Поток прогресса для операторов
	jwtService := utils.NewJWTService(cfg.JWTSecret)
	wsManager := websocket.NewManager(log)
	events, unsubscribe := engine.Subscribe(256)
	defer unsubscribe()
	go wsManager.Run(events)

	progressServer := &http.Server{
		Addr:    ":" + cfg.ProgressPort,
		Handler: websocket.NewRouter(wsManager, jwtService),
	}
	go func() {
		log.Info().Str("port", cfg.ProgressPort).Msg("✅ Поток прогресса запущен")
		if err := progressServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("❌ Ошибка сервера прогресса")
		}
	}()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "SkillSwap Migration API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Настраиваем middleware для аутентификации операторов
	authMiddleware := middleware.AuthMiddleware(jwtService)

	// Регистрируем маршруты
	trades, err := reg.Trades()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Сервис обменов недоступен")
	}
	chats, err := reg.Chat()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Сервис чатов недоступен")
	}
	adminService := admin.NewAdminService(ctx, reg, engine, migration.OptionsFromConfig(cfg.MigrationConfig), history, log)

	trades.SetupRoutes(app, authMiddleware)
	chats.SetupRoutes(app, authMiddleware)
	adminService.SetupRoutes(app, authMiddleware)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("❌ Ошибка HTTP сервера")
			stop()
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("✅ SkillSwap Migration API запущен")

	<-ctx.Done()
	log.Info().Msg("🛑 Получен сигнал остановки")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Текущий запуск доводит пакеты в работе до конца
	result, err := engine.RequestGracefulShutdown(shutdownCtx)
	switch {
	case err == nil && result != nil:
		log.Info().Str("run_id", result.RunID).Str("state", string(result.State)).
			Int64("remaining", result.Remaining).Msg("Миграция остановлена")
	case err != nil && !errors.Is(err, migration.ErrNoActiveRun):
		log.Error().Err(err).Msg("❌ Миграция не завершилась вовремя")
	}
	adminService.Wait()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}
	wsManager.Shutdown()
	if err := progressServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки сервера прогресса")
	}
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
