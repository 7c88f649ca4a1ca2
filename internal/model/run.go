package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single scoring run persisted for history.
type Run struct {
	ID        string           `json:"id"`
	InputPath string           `json:"input_path"`
	Source    Source           `json:"source"`
	Channel   Channel          `json:"channel"`
	Goal      Goal             `json:"goal"`
	Level     AnalysisLevel    `json:"level"`
	Status    RunStatus        `json:"status"`
	Summary   *PipelineSummary `json:"summary,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
