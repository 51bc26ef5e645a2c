package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// healthProbeTimeout ограничивает одну плановую проверку
const healthProbeTimeout = 10 * time.Second

// StartHealthMonitor запускает периодическую проверку сервисов.
// Пока монитор работает, Healthy отвечает из последнего отчета.
func (r *Registry) StartHealthMonitor(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("интервал проверки должен быть положительным")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return nil
	}

	scheduler := gocron.NewScheduler(time.UTC)
	r.logger.Info().Dur("interval", interval).Msg("Запуск мониторинга сервисов")

	if _, err := scheduler.Every(interval).Do(r.refreshHealth); err != nil {
		return fmt.Errorf("ошибка настройки планировщика: %w", err)
	}

	scheduler.StartAsync()
	r.scheduler = scheduler
	return nil
}

// StopHealthMonitor останавливает мониторинг
func (r *Registry) StopHealthMonitor() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		return
	}
	r.scheduler.Stop()
	r.scheduler = nil
	r.logger.Info().Msg("Мониторинг сервисов остановлен")
}

func (r *Registry) refreshHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	defer cancel()

	report := r.ValidateServices(ctx)
	r.lastReport.Store(&report)

	if !report.Healthy() {
		r.logger.Warn().Strs("errors", report.Errors).Msg("⚠️ Сервисы совместимости не прошли проверку")
	}
}

// LastReport возвращает последний отчет мониторинга
func (r *Registry) LastReport() (ValidationReport, bool) {
	report := r.lastReport.Load()
	if report == nil {
		return ValidationReport{}, false
	}
	return *report, true
}

// Healthy сообщает, здоровы ли оба сервиса. Без работающего монитора
// или до первого отчета выполняется проверка на месте.
func (r *Registry) Healthy(ctx context.Context) bool {
	r.mu.Lock()
	monitored := r.scheduler != nil
	r.mu.Unlock()

	if monitored {
		if report := r.lastReport.Load(); report != nil {
			return report.Healthy()
		}
	}

	report := r.ValidateServices(ctx)
	r.lastReport.Store(&report)
	return report.Healthy()
}
