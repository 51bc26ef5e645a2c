package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL время жизни токена оператора по умолчанию
const DefaultTokenTTL = 24 * time.Hour

// RoleOperator роль, которой разрешено управлять миграцией
const RoleOperator = "operator"

// ErrNotOperator токен действителен, но выдан не оператору
var ErrNotOperator = errors.New("токен выдан не оператору")

// JWTService отвечает за создание и валидацию JWT токенов операторов
type JWTService struct {
	secretKey string
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: secretKey}
}

// GenerateToken создаёт JWT токен для оператора миграции
func (s *JWTService) GenerateToken(operatorID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.MapClaims{
		"user_id": operatorID,
		"role":    RoleOperator,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken проверяет JWT токен
func (s *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
}

// ExtractUserID возвращает идентификатор оператора из токена
func (s *JWTService) ExtractUserID(tokenString string) (string, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("недействительный токен")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("в токене нет user_id")
	}
	return userID, nil
}

// ExtractOperatorID проверяет роль и возвращает UUID оператора
func (s *JWTService) ExtractOperatorID(tokenString string) (string, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("недействительный токен")
	}

	if role, _ := claims["role"].(string); role != RoleOperator {
		return "", ErrNotOperator
	}
	operatorID, _ := claims["user_id"].(string)
	if _, err := uuid.Parse(operatorID); err != nil {
		return "", fmt.Errorf("идентификатор оператора не UUID: %w", err)
	}
	return operatorID, nil
}

// BearerToken достает токен из заголовка Authorization
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}
