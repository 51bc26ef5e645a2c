package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// AuthMiddleware пропускает только запросы с действующим токеном оператора
func AuthMiddleware(jwtService *utils.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		tokenString, ok := utils.BearerToken(authHeader)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		operatorID, err := jwtService.ExtractOperatorID(tokenString)
		switch {
		case errors.Is(err, utils.ErrNotOperator):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Operator role required",
			})
		case err != nil:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		// Оператор нужен обработчикам для журнала миграции
		c.Locals("userID", operatorID)

		return c.Next()
	}
}
