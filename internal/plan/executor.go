package plan

import (
	"log/slog"
	"time"

	"github.com/fentz26/bioreactor/internal/logging"
	"github.com/fentz26/bioreactor/internal/models"
)

// Result is the outcome of a whole plan. Log holds one entry per attempted
// step; on abort it ends with the failing step's Error entry.
type Result struct {
	Log        []models.LogEntry
	Completed  bool
	FailedStep int // 1-based index of the failing step, 0 when completed
	Err        error
}

// StepObserver is called after each step with its log entry.
type StepObserver func(entry models.LogEntry)

// Executor runs plans step by step against an Access.
type Executor struct {
	access   Access
	sleep    func(time.Duration)
	log      *slog.Logger
	observer StepObserver
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces time.Sleep for wait steps.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.log = logger }
}

// WithObserver registers a per-step observer.
func WithObserver(o StepObserver) Option {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor creates an executor for access.
func NewExecutor(access Access, opts ...Option) *Executor {
	e := &Executor{
		access: access,
		sleep:  time.Sleep,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p's steps in order. The first failing step is logged as an
// Error and ends the run; later steps are never attempted. Nothing already
// applied is rolled back.
func (e *Executor) Execute(p Plan) *Result {
	res := &Result{Log: make([]models.LogEntry, 0, len(p.Steps))}
	env := Env{Access: e.access, Sleep: e.sleep}

	for i, step := range p.Steps {
		out := step.Run(env)

		entry := models.LogEntry{Step: i + 1, Type: step.Type()}
		if out.Err != nil {
			entry.Status = models.StepStatusError
			entry.Details = out.Err.Error()
		} else {
			entry.Status = models.StepStatusSuccess
			entry.Details = out.Details
		}
		res.Log = append(res.Log, entry)
		if e.observer != nil {
			e.observer(entry)
		}

		if out.Err != nil {
			res.FailedStep = i + 1
			res.Err = out.Err
			e.log.Warn("plan aborted", "step", i+1, "type", step.Type(), "error", out.Err)
			return res
		}
		e.log.Debug("plan step done", "step", i+1, "type", step.Type())
	}

	res.Completed = true
	return res
}
