package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rajivgeraev/skillswap-api/internal/logger"
)

// Драйверы хранилища документов
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config структура конфигурации
type Config struct {
	AppEnv           string
	Port             string
	ProgressPort     string
	LogLevel         string
	JWTSecret        string
	StoreDriver      string
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	MongoConfig      MongoConfig
	AuditMySQLDSN    string
	CloudinaryConfig CloudinaryConfig
	MigrationConfig  MigrationConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// MongoConfig содержит параметры подключения к MongoDB
type MongoConfig struct {
	URI      string
	Database string
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// MigrationConfig содержит значения по умолчанию для запусков миграции
type MigrationConfig struct {
	Enabled              bool // MIGRATION_MODE, режим двойного формата
	BatchSize            int
	MaxConcurrentBatches int
	RateLimit            time.Duration
	MaxRetries           int
	ErrorThreshold       float64
	MinSampleSize        int
	HealthCheckInterval  time.Duration
}

// Load загружает конфигурацию из .env и переменных окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Logger.Debug().Msg(".env файл не найден, используем переменные окружения")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "skillswap_user"),
		Password: getEnv("PGPASSWORD", "skillswap_pass"),
		Name:     getEnv("PGDATABASE", "skillswap"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения, если DATABASE_URL не задан явно
	dbURL := getEnv("DATABASE_URL", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode))

	var errs []error

	migrationConfig := MigrationConfig{
		Enabled:              getEnvBool("MIGRATION_MODE", false, &errs),
		BatchSize:            getEnvInt("MIGRATION_BATCH_SIZE", 50, &errs),
		MaxConcurrentBatches: getEnvInt("MIGRATION_MAX_CONCURRENT_BATCHES", 2, &errs),
		RateLimit:            getEnvDuration("MIGRATION_RATE_LIMIT", 100*time.Millisecond, &errs),
		MaxRetries:           getEnvInt("MIGRATION_MAX_RETRIES", 3, &errs),
		ErrorThreshold:       getEnvFloat("MIGRATION_ERROR_THRESHOLD", 0.05, &errs),
		MinSampleSize:        getEnvInt("MIGRATION_MIN_SAMPLE", 100, &errs),
		HealthCheckInterval:  getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second, &errs),
	}

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "production"),
		Port:           getEnv("PORT", "8080"),
		ProgressPort:   getEnv("PROGRESS_PORT", "8081"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:    dbURL,
		DatabaseConfig: dbConfig,
		MongoConfig: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "skillswap"),
		},
		AuditMySQLDSN: getEnv("AUDIT_MYSQL_DSN", ""),
		CloudinaryConfig: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		},
		MigrationConfig: migrationConfig,
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("неизвестный STORE_DRIVER %q", cfg.StoreDriver))
	}

	if migrationConfig.ErrorThreshold <= 0 || migrationConfig.ErrorThreshold > 1 {
		errs = append(errs, fmt.Errorf("MIGRATION_ERROR_THRESHOLD должен быть в диапазоне (0, 1], получено %v", migrationConfig.ErrorThreshold))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig загружает конфигурацию и завершает процесс при ошибке
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("❌ Ошибка конфигурации")
	}

	if cfg.JWTSecret == "" {
		logger.Logger.Fatal().Msg("❌ Ошибка: Не задан JWT_SECRET")
	}

	return cfg
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
