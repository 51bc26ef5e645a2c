package admin

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/migration"
	"github.com/rajivgeraev/skillswap-api/internal/registry"
)

// shutdownWait сколько ждать завершения пакетов при плавной остановке
const shutdownWait = 2 * time.Minute

// SetupRoutes настраивает маршруты операторского API
func (s *AdminService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	// Группа для API миграции
	api := router.Group("/api/admin")

	// Все маршруты только для операторов
	api.Use(authMiddleware)

	api.Get("/status", s.GetStatus)
	api.Get("/services/validate", s.ValidateServices)
	api.Put("/mode", s.UpdateMode)

	api.Post("/migration/validate", s.ValidateMigration)
	api.Post("/migration/run", s.RunMigration)
	api.Post("/migration/emergency-stop", s.StopMigration)
	api.Post("/migration/shutdown", s.ShutdownMigration)
	api.Get("/migration/history", s.GetHistory)
	api.Get("/migration/history/:runId", s.GetRunBatches)
}

// GetStatus возвращает состояние реестра и движка
func (s *AdminService) GetStatus(c fiber.Ctx) error {
	return c.JSON(s.Status())
}

// ValidateServices проверяет сервисы совместимости
func (s *AdminService) ValidateServices(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	report := s.registry.ValidateServices(ctx)
	status := fiber.StatusOK
	if !report.Healthy() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

// UpdateMode включает или выключает режим двойного формата
func (s *AdminService) UpdateMode(c fiber.Ctx) error {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	return c.JSON(s.SetMigrationMode(req.Enabled))
}

// ValidateMigration проверяет предварительные условия для коллекции
func (s *AdminService) ValidateMigration(c fiber.Ctx) error {
	var req struct {
		Collection string `json:"collection"`
	}
	if err := c.Bind().Body(&req); err != nil || req.Collection == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Не указана коллекция"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	report := s.engine.CheckPrerequisites(ctx, req.Collection)
	return c.JSON(fiber.Map{
		"ready":  report.OK(),
		"report": report,
	})
}

// RunMigration запускает миграцию коллекции в фоне
func (s *AdminService) RunMigration(c fiber.Ctx) error {
	var req RunRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if _, err := s.StartRun(ctx, req, operator(c)); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":    "Миграция запущена",
		"collection": req.Collection,
	})
}

// StopMigration аварийно останавливает миграцию
func (s *AdminService) StopMigration(c fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	// Тело необязательно, без причины подставляется стандартная
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
		}
	}

	if err := s.EmergencyStop(req.Reason, operator(c)); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Аварийная остановка запрошена"})
}

// ShutdownMigration плавно останавливает миграцию и возвращает итог
func (s *AdminService) ShutdownMigration(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	result, err := s.Shutdown(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

// GetHistory возвращает последние запуски
func (s *AdminService) GetHistory(c fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	runs, err := s.History(ctx, limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"runs": runs, "count": len(runs)})
}

// GetRunBatches возвращает пакеты запуска
func (s *AdminService) GetRunBatches(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	batches, err := s.RunBatches(ctx, c.Params("runId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"batches": batches, "count": len(batches)})
}

func (s *AdminService) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, compat.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, migration.ErrNoActiveRun):
		status = fiber.StatusNotFound
	case errors.Is(err, migration.ErrRunInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, migration.ErrPrerequisites), errors.Is(err, registry.ErrNotInitialized),
		errors.Is(err, errHistoryDisabled):
		status = fiber.StatusServiceUnavailable
	default:
		s.logger.Error().Err(err).Msg("Ошибка операторского API")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func operator(c fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
