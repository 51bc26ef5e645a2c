package trade

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *TradeService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	// Группа для API обменов
	api := router.Group("/api/trades")

	// Защищенные маршруты (требуют авторизации)
	api.Use(authMiddleware)

	api.Get("/", s.ListTrades)
	api.Get("/user/:userId", s.GetUserTrades)
	api.Get("/:id", s.GetTrade)
	api.Put("/:id", s.SaveTrade)
}

// GetTrade возвращает обмен в нормализованном виде
func (s *TradeService) GetTrade(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	result, err := s.Get(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, err, "Ошибка получения обмена")
	}
	if result.Status == compat.StatusNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Обмен не найден"})
	}

	return c.JSON(fiber.Map{
		"trade":  result.Value,
		"status": result.Status,
	})
}

// ListTrades ищет обмены по навыку: ?skill=Go&kind=offered|wanted
func (s *TradeService) ListTrades(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var results []compat.Result[models.Trade]
	if skill := c.Query("skill"); skill != "" {
		kind := SkillKind(c.Query("kind", string(SkillOffered)))
		results, err = s.QueryBySkill(ctx, skill, kind, limit)
	} else {
		results, err = s.Query(ctx, nil, limit)
	}
	if err != nil {
		return s.fail(c, err, "Ошибка получения обменов")
	}

	return c.JSON(fiber.Map{
		"trades": results,
		"count":  len(results),
	})
}

// GetUserTrades возвращает обмены пользователя
func (s *TradeService) GetUserTrades(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	results, err := s.QueryByUser(ctx, c.Params("userId"), limit)
	if err != nil {
		return s.fail(c, err, "Ошибка получения обменов пользователя")
	}

	return c.JSON(fiber.Map{
		"trades": results,
		"count":  len(results),
	})
}

// SaveTrade сохраняет обмен в двойном формате
func (s *TradeService) SaveTrade(c fiber.Ctx) error {
	var t models.Trade
	if err := c.Bind().Body(&t); err != nil {
		s.logger.Warn().Err(err).Msg("Ошибка декодирования тела запроса")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	t.ID = c.Params("id")

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.Save(ctx, t); err != nil {
		return s.fail(c, err, "Ошибка сохранения обмена")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": t.ID})
}

func (s *TradeService) fail(c fiber.Ctx, err error, message string) error {
	if errors.Is(err, compat.ErrInvalidArgument) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Error().Err(err).Msg(message)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

func parseLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 50, nil
	}
	return strconv.Atoi(raw)
}
