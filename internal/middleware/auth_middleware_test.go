package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

const operatorID = "5f0c6a1e-0000-4000-8000-000000000001"

func newApp(jwtService *utils.JWTService) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(jwtService), func(c fiber.Ctx) error {
		return c.SendString(c.Locals("userID").(string))
	})
	return app
}

func request(t *testing.T, app *fiber.App, header string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	app := newApp(jwtService)

	token, err := jwtService.GenerateToken(operatorID, time.Hour)
	require.NoError(t, err)

	userToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": operatorID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	notUUID, err := jwtService.GenerateToken("bob", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"оператор", "Bearer " + token, http.StatusOK},
		{"без заголовка", "", http.StatusUnauthorized},
		{"не Bearer", "Token " + token, http.StatusUnauthorized},
		{"мусор", "Bearer abc", http.StatusUnauthorized},
		{"без роли", "Bearer " + userToken, http.StatusForbidden},
		{"id не UUID", "Bearer " + notUUID, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := request(t, app, tc.header)
			defer resp.Body.Close()
			assert.Equal(t, tc.code, resp.StatusCode)
		})
	}
}
