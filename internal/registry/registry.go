// Package registry хранит сервисы совместимости и флаг режима миграции.
// Реестр создается явно в main и передается тем, кому нужны сервисы.
package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/services/chat"
	"github.com/rajivgeraev/skillswap-api/internal/services/trade"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// ErrNotInitialized реестр используется до вызова Initialize
var ErrNotInitialized = errors.New("реестр миграции не инициализирован")

// services неизменяемый набор сервисов, заменяется целиком
type services struct {
	trades *trade.TradeService
	chat   *chat.ChatService
}

// Status снимок состояния реестра
type Status struct {
	Initialized   bool           `json:"initialized"`
	MigrationMode bool           `json:"migrationMode"`
	Services      ServicesStatus `json:"services"`
}

// ServicesStatus наличие сервисов
type ServicesStatus struct {
	Trades bool `json:"trades"`
	Chat   bool `json:"chat"`
}

// ValidationReport результат проверки сервисов
type ValidationReport struct {
	Trades bool     `json:"trades"`
	Chat   bool     `json:"chat"`
	Errors []string `json:"errors"`
}

// Healthy сообщает, что оба сервиса прошли проверку
func (r ValidationReport) Healthy() bool {
	return r.Trades && r.Chat
}

// Option настройка реестра
type Option func(*Registry)

// WithAvatarResolver задает преобразование аватаров для сервиса чатов
func WithAvatarResolver(avatars chat.AvatarResolver) Option {
	return func(r *Registry) {
		r.avatars = avatars
	}
}

// Registry реестр сервисов совместимости. Чтение флагов не блокируется.
type Registry struct {
	logger  zerolog.Logger
	avatars chat.AvatarResolver

	mu            sync.Mutex // только для изменений
	state         atomic.Pointer[services]
	store         atomic.Value // store.Store
	migrationMode atomic.Bool

	scheduler  *gocron.Scheduler
	lastReport atomic.Pointer[ValidationReport]
}

// New создает пустой реестр
func New(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{logger: logger.With().Str("component", "registry").Logger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize создает сервисы поверх хранилища. Повторный вызов ничего не меняет.
func (r *Registry) Initialize(s store.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Load() != nil {
		r.logger.Warn().Msg("⚠️ Реестр миграции уже инициализирован, повторный вызов пропущен")
		return
	}

	svc := &services{
		trades: trade.NewTradeService(s, r.logger),
		chat:   chat.NewChatService(s, r.avatars, r.logger),
	}
	mode := r.migrationMode.Load()
	svc.trades.SetDualRead(mode)
	svc.chat.SetDualRead(mode)

	r.store.Store(storeBox{s})
	r.state.Store(svc)
	r.logger.Info().Bool("migration_mode", mode).Msg("✅ Реестр миграции инициализирован")
}

// storeBox обертка, чтобы atomic.Value всегда хранил один конкретный тип
type storeBox struct{ store.Store }

// Store возвращает хранилище, с которым инициализирован реестр
func (r *Registry) Store() (store.Store, error) {
	box, ok := r.store.Load().(storeBox)
	if !ok || box.Store == nil || r.state.Load() == nil {
		return nil, ErrNotInitialized
	}
	return box.Store, nil
}

// Trades возвращает сервис обменов
func (r *Registry) Trades() (*trade.TradeService, error) {
	svc := r.state.Load()
	if svc == nil {
		return nil, ErrNotInitialized
	}
	return svc.trades, nil
}

// Chat возвращает сервис чатов
func (r *Registry) Chat() (*chat.ChatService, error) {
	svc := r.state.Load()
	if svc == nil {
		return nil, ErrNotInitialized
	}
	return svc.chat, nil
}

// Initialized сообщает, инициализирован ли реестр
func (r *Registry) Initialized() bool {
	return r.state.Load() != nil
}

// MigrationMode сообщает, включен ли режим двойного формата
func (r *Registry) MigrationMode() bool {
	return r.migrationMode.Load()
}

// EnableMigrationMode включает режим двойного формата
func (r *Registry) EnableMigrationMode() {
	r.setMigrationMode(true)
}

// DisableMigrationMode выключает режим двойного формата
func (r *Registry) DisableMigrationMode() {
	r.setMigrationMode(false)
}

// EnableMigrationModeFromConfig выставляет режим по MIGRATION_MODE
func (r *Registry) EnableMigrationModeFromConfig(cfg *config.Config) {
	r.setMigrationMode(cfg.MigrationConfig.Enabled)
}

func (r *Registry) setMigrationMode(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.migrationMode.Store(on)
	if svc := r.state.Load(); svc != nil {
		svc.trades.SetDualRead(on)
		svc.chat.SetDualRead(on)
	}
	r.logger.Info().Bool("migration_mode", on).Msg("Режим миграции изменен")
}

// Status возвращает снимок состояния без побочных эффектов
func (r *Registry) Status() Status {
	svc := r.state.Load()
	return Status{
		Initialized:   svc != nil,
		MigrationMode: r.migrationMode.Load(),
		Services: ServicesStatus{
			Trades: svc != nil && svc.trades != nil,
			Chat:   svc != nil && svc.chat != nil,
		},
	}
}

// ValidateServices проверяет оба сервиса пробным чтением. Проверки выполняются
// параллельно, ошибка одной не скрывает результат другой.
func (r *Registry) ValidateServices(ctx context.Context) ValidationReport {
	svc := r.state.Load()
	if svc == nil {
		return ValidationReport{Errors: []string{ErrNotInitialized.Error()}}
	}

	var (
		wg                sync.WaitGroup
		tradeErr, chatErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tradeErr = svc.trades.Probe(ctx)
	}()
	go func() {
		defer wg.Done()
		chatErr = svc.chat.Probe(ctx)
	}()
	wg.Wait()

	report := ValidationReport{Trades: tradeErr == nil, Chat: chatErr == nil, Errors: []string{}}
	for _, err := range []error{tradeErr, chatErr} {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}
	return report
}

// Reset очищает состояние реестра и останавливает мониторинг
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		r.scheduler.Stop()
		r.scheduler = nil
	}
	r.state.Store(nil)
	r.store.Store(storeBox{})
	r.migrationMode.Store(false)
	r.lastReport.Store(nil)
	r.logger.Info().Msg("Реестр миграции сброшен")
}
