package chat

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/db"
)

// SetupRoutes настраивает маршруты для API чатов
func (s *ChatService) SetupRoutes(router fiber.Router, authMiddleware fiber.Handler) {
	// Группа для API чатов
	api := router.Group("/api/chats")

	// Защищенные маршруты (требуют авторизации)
	api.Use(authMiddleware)

	api.Get("/user/:userId", s.GetUserChats)
	api.Get("/:id", s.GetChat)
	api.Get("/:id/messages", s.GetChatMessages)
}

// GetChat возвращает чат в нормализованном виде
func (s *ChatService) GetChat(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	result, err := s.Get(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, err, "Ошибка получения чата")
	}
	if result.Status == compat.StatusNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Чат не найден"})
	}

	return c.JSON(fiber.Map{
		"chat":   result.Value,
		"status": result.Status,
	})
}

// GetUserChats возвращает чаты пользователя
func (s *ChatService) GetUserChats(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	results, err := s.QueryByUser(ctx, c.Params("userId"), limit)
	if err != nil {
		return s.fail(c, err, "Ошибка получения чатов")
	}

	return c.JSON(fiber.Map{
		"chats": results,
		"count": len(results),
	})
}

// GetChatMessages возвращает сообщения чата
func (s *ChatService) GetChatMessages(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	messages, err := s.Messages(ctx, c.Params("id"), limit)
	if err != nil {
		return s.fail(c, err, "Ошибка получения сообщений")
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *ChatService) fail(c fiber.Ctx, err error, message string) error {
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
