// Package plan executes ordered read/write/wait plans against the parameter
// registry with abort-on-first-failure semantics.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
)

// Sentinel errors for step failures that are not parameter lookups.
var (
	ErrUnknownStepType = errors.New("unknown step type")
	ErrMalformedStep   = errors.New("malformed step")
)

// stepError is a step failure whose message is shown to callers verbatim
// and which matches one of the sentinels above.
type stepError struct {
	kind error
	msg  string
}

func (e *stepError) Error() string        { return e.msg }
func (e *stepError) Is(target error) bool { return target == e.kind }

// Access is the parameter access layer a plan runs against.
type Access interface {
	Read(names []string) (map[string]float64, error)
	Write(values map[string]float64) map[string]string
}

// Env is what a step may touch while it runs.
type Env struct {
	Access Access
	Sleep  func(time.Duration)
}

// Outcome is the explicit result of one step: Details on success, Err on
// failure. The executor continues on a nil Err and aborts otherwise.
type Outcome struct {
	Details interface{}
	Err     error
}

// Step is one plan step. The set of variants is closed: ReadStep,
// WriteStep, WaitStep, UnknownStep and MalformedStep.
type Step interface {
	Type() string
	Run(env Env) Outcome
	isStep()
}

// ReadStep reads the PVs of Parameters.
type ReadStep struct {
	Parameters []string
}

func (ReadStep) Type() string { return models.StepTypeRead }
func (ReadStep) isStep()      {}

// Run fails if any parameter is unknown.
func (s ReadStep) Run(env Env) Outcome {
	readings, err := env.Access.Read(s.Parameters)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Details: readings}
}

// WriteStep writes setpoints. Per-entry errors are reported in the details
// and never fail the step.
type WriteStep struct {
	Values map[string]float64
}

func (WriteStep) Type() string { return models.StepTypeWrite }
func (WriteStep) isStep()      {}

func (s WriteStep) Run(env Env) Outcome {
	return Outcome{Details: env.Access.Write(s.Values)}
}

// WaitStep suspends the plan for Seconds. It cannot be interrupted.
type WaitStep struct {
	Seconds int
}

func (WaitStep) Type() string { return models.StepTypeWait }
func (WaitStep) isStep()      {}

func (s WaitStep) Run(env Env) Outcome {
	if s.Seconds > 0 {
		env.Sleep(time.Duration(s.Seconds) * time.Second)
	}
	return Outcome{Details: fmt.Sprintf("Waited for %d seconds.", s.Seconds)}
}

// UnknownStep carries a type tag the executor does not recognise.
type UnknownStep struct {
	Tag string
}

func (s UnknownStep) Type() string { return s.Tag }
func (UnknownStep) isStep()        {}

func (s UnknownStep) Run(Env) Outcome {
	return Outcome{Err: &stepError{kind: ErrUnknownStepType, msg: "Unknown step type: " + s.Tag}}
}

// MalformedStep is a recognised step type missing its payload.
type MalformedStep struct {
	Tag    string
	Reason string
}

func (s MalformedStep) Type() string { return s.Tag }
func (MalformedStep) isStep()        {}

func (s MalformedStep) Run(Env) Outcome {
	return Outcome{Err: &stepError{kind: ErrMalformedStep, msg: s.Reason}}
}

// Plan is an ordered list of typed steps. AllowOnSuccess is carried for
// callers and is not consulted by the executor.
type Plan struct {
	Steps          []Step
	AllowOnSuccess bool
	Note           string
}

// FromSpec converts the wire form into typed steps. It never fails: bad
// steps become UnknownStep or MalformedStep and fail when executed.
func FromSpec(spec models.PlanSpec) Plan {
	p := Plan{
		Steps:          make([]Step, 0, len(spec.Steps)),
		AllowOnSuccess: spec.AllowOnSuccess,
		Note:           spec.Note,
	}
	for _, s := range spec.Steps {
		p.Steps = append(p.Steps, stepFromSpec(s))
	}
	return p
}

func stepFromSpec(s models.StepSpec) Step {
	switch s.Type {
	case models.StepTypeRead:
		if s.Parameters == nil {
			return MalformedStep{Tag: s.Type, Reason: "read step requires parameters"}
		}
		return ReadStep{Parameters: s.Parameters}
	case models.StepTypeWrite:
		if s.Values == nil {
			return MalformedStep{Tag: s.Type, Reason: "write step requires values"}
		}
		return WriteStep{Values: s.Values}
	case models.StepTypeWait:
		if s.Seconds == nil {
			return MalformedStep{Tag: s.Type, Reason: "wait step requires seconds"}
		}
		return WaitStep{Seconds: *s.Seconds}
	default:
		return UnknownStep{Tag: s.Type}
	}
}
