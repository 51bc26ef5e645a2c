package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/store/memory"
	"github.com/rajivgeraev/skillswap-api/internal/store/mongo"
	"github.com/rajivgeraev/skillswap-api/internal/store/postgres"
)

// Connect открывает хранилище документов по STORE_DRIVER и возвращает функцию закрытия
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	logger.Info().Str("driver", cfg.StoreDriver).Msg("Подключение к хранилищу документов")

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		s, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StoreDriverMongo:
		s, err := mongo.Connect(ctx, cfg.MongoConfig.URI, cfg.MongoConfig.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StoreDriverMemory:
		logger.Warn().Msg("⚠️ Используется хранилище в памяти, данные не сохраняются между запусками")
		return memory.New(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("неизвестный драйвер хранилища: %s", cfg.StoreDriver)
}

// GetContext возвращает контекст с таймаутом для запросов к хранилищу
func GetContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
