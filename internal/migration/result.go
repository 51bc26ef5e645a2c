package migration

import (
	"fmt"
	"time"
)

// State состояние движка миграции
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateRunning           State = "running"
	StateCompleted         State = "completed"
	StateEmergencyStopped  State = "emergency_stopped"
	StateRolledBack        State = "rolled_back"
	StateGracefullyStopped State = "gracefully_stopped"
)

// Terminal сообщает, что запуск завершен
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateEmergencyStopped, StateRolledBack, StateGracefullyStopped:
		return true
	}
	return false
}

// DocumentError ошибка обработки документа
type DocumentError struct {
	DocumentID string `json:"documentId,omitempty"`
	BatchID    string `json:"batchId,omitempty"`
	Attempts   int    `json:"attempts"`
	Message    string `json:"message"`
}

// PerformanceMetrics показатели запуска
type PerformanceMetrics struct {
	StartedAt            time.Time     `json:"startedAt"`
	FinishedAt           time.Time     `json:"finishedAt"`
	Duration             time.Duration `json:"duration"`
	DocumentsPerSecond   float64       `json:"documentsPerSecond"`
	AverageBatchDuration time.Duration `json:"averageBatchDuration"`
	MaxBatchDuration     time.Duration `json:"maxBatchDuration"`
	Retries              int64         `json:"retries"`
	FailedCommits        int64         `json:"failedCommits"`
	HealthPauses         int64         `json:"healthPauses"`
}

// Result итог запуска миграции
type Result struct {
	RunID                  string             `json:"runId"`
	Collection             string             `json:"collection"`
	Success                bool               `json:"success"`
	State                  State              `json:"state"`
	TotalDocuments         int64              `json:"totalDocuments"`
	TotalProcessed         int64              `json:"totalProcessed"`
	Succeeded              int64              `json:"succeeded"`
	Skipped                int64              `json:"skipped"`
	Failed                 int64              `json:"failed"`
	Remaining              int64              `json:"remaining"`
	ErrorRate              float64            `json:"errorRate"`
	Errors                 []DocumentError    `json:"errors"`
	PerformanceMetrics     PerformanceMetrics `json:"performanceMetrics"`
	BatchesProcessed       int                `json:"batchesProcessed"`
	DryRun                 bool               `json:"dryRun"`
	RollbackExecuted       bool               `json:"rollbackExecuted"`
	EmergencyStopTriggered bool               `json:"emergencyStopTriggered"`
	EmergencyStopReason    string             `json:"emergencyStopReason,omitempty"`
	DataIntegrityPreserved bool               `json:"dataIntegrityPreserved"`
}

// Err возвращает ErrEmergencyStop для аварийно остановленного запуска
func (r *Result) Err() error {
	switch {
	case r == nil:
		return nil
	case r.EmergencyStopTriggered:
		return fmt.Errorf("%w: %s", ErrEmergencyStop, r.EmergencyStopReason)
	case r.RollbackExecuted:
		return fmt.Errorf("%w: выполнен откат", ErrEmergencyStop)
	}
	return nil
}
