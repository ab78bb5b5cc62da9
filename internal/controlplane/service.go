// Package controlplane provides the HTTP API and service layer for the
// bioreactor endpoint.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/bioreactor/internal/audit"
	"github.com/fentz26/bioreactor/internal/logging"
	"github.com/fentz26/bioreactor/internal/metrics"
	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/plan"
	"github.com/fentz26/bioreactor/internal/reactor"
	"github.com/fentz26/bioreactor/internal/simulation"
	"github.com/fentz26/bioreactor/internal/store"
	"github.com/google/uuid"
)

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

const noLoopsStatus = "No active closed-loop controllers."

// Service provides the control plane business logic.
type Service struct {
	registry *reactor.Registry
	engine   *simulation.Engine
	executor *plan.Executor
	store    *store.Store
	pdr      *audit.PDRWriter
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewService creates a new control plane service. opts are passed to the
// plan executor.
func NewService(reg *reactor.Registry, eng *simulation.Engine, st *store.Store, m *metrics.Metrics, logger *slog.Logger, opts ...plan.Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		registry: reg,
		engine:   eng,
		store:    st,
		pdr:      audit.NewPDRWriter(st),
		metrics:  m,
		log:      logger,
	}
	execOpts := []plan.Option{
		plan.WithLogger(logger),
		plan.WithObserver(m.ObserveStep),
	}
	s.executor = plan.NewExecutor(&meteredAccess{reg: reg, metrics: m}, append(execOpts, opts...)...)
	return s
}

// meteredAccess is the executor's view of the registry; it counts plan
// writes the same way as direct writes.
type meteredAccess struct {
	reg     *reactor.Registry
	metrics *metrics.Metrics
}

func (a *meteredAccess) Read(names []string) (map[string]float64, error) {
	return a.reg.Read(names)
}

func (a *meteredAccess) Write(values map[string]float64) map[string]string {
	results := a.reg.WriteDetailed(values)
	a.metrics.ObserveWrites(results)
	out := make(map[string]string, len(results))
	for _, r := range results {
		out[r.Name] = r.Outcome()
	}
	return out
}

// --- Parameter Operations ---

// Status returns PV and SP for every parameter.
func (s *Service) Status() map[string]models.ParameterStatus {
	return s.registry.Snapshot()
}

// ReadParameters returns the PVs of names, failing on the first unknown one.
func (s *Service) ReadParameters(names []string) (map[string]float64, error) {
	return s.registry.Read(names)
}

// WriteParameters applies setpoints and returns a per-entry outcome.
func (s *Service) WriteParameters(values map[string]float64) map[string]string {
	results := s.registry.WriteDetailed(values)
	s.metrics.ObserveWrites(results)

	out := make(map[string]string, len(results))
	clamped := 0
	for _, r := range results {
		out[r.Name] = r.Outcome()
		if r.Clamped {
			clamped++
		}
	}

	s.record(audit.ActionSetpointWrite, values, "success", "", fmt.Sprintf("%d entries, %d clamped", len(results), clamped))
	s.log.Info("setpoints written", "entries", len(results), "clamped", clamped)
	return out
}

// --- Plan Operations ---

// GeneratePlan returns a plan for prompt.
func (s *Service) GeneratePlan(prompt string) models.PlanSpec {
	s.log.Debug("plan requested", "prompt", prompt)
	return plan.Generate(prompt)
}

// ExecutePlan runs spec to completion or first failure and journals the
// run. The returned execution is never nil; its Status says how it ended.
func (s *Service) ExecutePlan(spec models.PlanSpec) *models.Execution {
	exec := &models.Execution{
		ID:             uuid.New().String(),
		Note:           spec.Note,
		AllowOnSuccess: spec.AllowOnSuccess,
		Steps:          spec.Steps,
		StartedAt:      time.Now().UTC(),
	}
	if exec.Steps == nil {
		exec.Steps = []models.StepSpec{}
	}
	s.log.Info("plan started", "execution_id", exec.ID, "steps", len(spec.Steps))

	res := s.executor.Execute(plan.FromSpec(spec))

	exec.Log = res.Log
	exec.EndedAt = time.Now().UTC()
	if res.Completed {
		exec.Status = models.ExecutionStatusCompleted
	} else {
		exec.Status = models.ExecutionStatusAborted
		exec.FailedStep = res.FailedStep
		exec.Error = res.Err.Error()
	}
	s.metrics.ObserveExecution(exec.Status)

	if err := s.store.SaveExecution(exec); err != nil {
		s.log.Error("failed to journal execution", "execution_id", exec.ID, "error", err)
	}
	s.record(audit.ActionPlanExecute, spec, string(exec.Status), exec.ID, exec.Error)

	s.log.Info("plan finished", "execution_id", exec.ID, "status", exec.Status, "steps_run", len(exec.Log))
	return exec
}

// ControlLoops reports closed-loop controller status. There are none.
func (s *Service) ControlLoops() models.ControlLoops {
	return models.ControlLoops{ActiveLoops: []string{}, Status: noLoopsStatus}
}

// Trend returns the recent PV history of name.
func (s *Service) Trend(name string) (*models.Trend, error) {
	values, err := s.engine.History(name)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []float64{}
	}
	return &models.Trend{Parameter: name, Values: values}, nil
}

// --- Journal Operations ---

// ListExecutions returns recent plan executions, newest first.
func (s *Service) ListExecutions(limit int) ([]models.Execution, error) {
	return s.store.ListExecutions(limit)
}

// GetExecution returns one execution or ErrNotFound.
func (s *Service) GetExecution(id string) (*models.Execution, error) {
	exec, err := s.store.GetExecution(id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, ErrNotFound
	}
	return exec, nil
}

// ListAudit returns recent decision records, newest first.
func (s *Service) ListAudit(limit int) ([]models.PDREntry, error) {
	return s.store.ListPDR(limit)
}

// Health checks the journal database.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// record writes a PDR. Audit failures never change an operation's result.
func (s *Service) record(action string, inputs interface{}, outcome, executionID, details string) {
	if _, err := s.pdr.Record(action, inputs, outcome, executionID, details); err != nil {
		s.log.Warn("failed to write audit record", "action", action, "error", err)
	}
}
