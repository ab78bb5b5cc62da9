package tui

import (
	"time"

	"github.com/fentz26/bioreactor/internal/models"
)

// ParameterRow is one line of the status panel.
type ParameterRow struct {
	Name string
	PV   float64
	SP   float64
}

// PlanRun is the result of executing a plan through the API.
type PlanRun struct {
	ExecutionID string
	Completed   bool
	Log         []models.LogEntry
}

// Event is one line of the console's event log.
type Event struct {
	At    time.Time
	Level string // "info", "ok", "error"
	Text  string
}
