// Package models defines the wire and journal types shared by the bioreactor
// daemon, its CLI and its console.
package models

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// ParameterStatus is the live reading of one parameter.
type ParameterStatus struct {
	PV float64 `json:"PV"`
	SP float64 `json:"SP"`
}

// StepStatus is the outcome tag of a single executed plan step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "Success"
	StepStatusError   StepStatus = "Error"
)

// Step type tags understood by the plan executor.
const (
	StepTypeRead  = "read"
	StepTypeWrite = "write"
	StepTypeWait  = "wait"
)

// ExecutionStatus is the terminal state of a plan execution.
type ExecutionStatus string

const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusAborted   ExecutionStatus = "aborted"
)

// StepSpec is one step of a plan as it travels over the wire or sits in a
// plan file. Only the payload field matching Type is meaningful.
type StepSpec struct {
	Type       string             `json:"type" yaml:"type"`
	Parameters []string           `json:"parameters" yaml:"parameters,omitempty"`
	Values     map[string]float64 `json:"values" yaml:"values,omitempty"`
	Seconds    *int               `json:"seconds,omitempty" yaml:"seconds,omitempty"`
}

// PlanSpec is an ordered list of steps plus its advisory metadata.
type PlanSpec struct {
	Steps          []StepSpec `json:"steps" yaml:"steps"`
	AllowOnSuccess bool       `json:"allow_on_success" yaml:"allow_on_success"`
	Note           string     `json:"note" yaml:"note"`
}

// UnmarshalJSON defaults allow_on_success to true when the field is absent.
func (p *PlanSpec) UnmarshalJSON(data []byte) error {
	type plain PlanSpec
	aux := plain{AllowOnSuccess: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = PlanSpec(aux)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for plan files.
func (p *PlanSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain PlanSpec
	aux := plain{AllowOnSuccess: true}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*p = PlanSpec(aux)
	return nil
}

// LogEntry records the outcome of one executed step. Details holds the
// readings map for reads, the per-parameter outcome map for writes, and a
// message string for waits and errors.
type LogEntry struct {
	Step    int         `json:"step"`
	Type    string      `json:"type"`
	Status  StepStatus  `json:"status"`
	Details interface{} `json:"details"`
}

// Execution is the journal record of one plan run.
type Execution struct {
	ID             string          `json:"id"`
	Note           string          `json:"note"`
	AllowOnSuccess bool            `json:"allow_on_success"`
	Status         ExecutionStatus `json:"status"`
	Steps          []StepSpec      `json:"steps"`
	Log            []LogEntry      `json:"log"`
	FailedStep     int             `json:"failed_step,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        time.Time       `json:"ended_at"`
}

// PDREntry is a Process Decision Record: one audited state-mutating action.
type PDREntry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	InputsHash  string    `json:"inputs_hash"`
	Outcome     string    `json:"outcome"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ControlLoops is the control-loop status payload. No closed-loop
// controllers exist yet, so ActiveLoops is always empty.
type ControlLoops struct {
	ActiveLoops []string `json:"active_loops"`
	Status      string   `json:"status"`
}

// Trend is the recent PV history of one parameter, oldest first.
type Trend struct {
	Parameter string    `json:"parameter"`
	Values    []float64 `json:"values"`
}
