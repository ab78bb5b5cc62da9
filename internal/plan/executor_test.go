package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func setpoint(t *testing.T, reg *reactor.Registry, name string) float64 {
	t.Helper()
	st, ok := reg.Snapshot()[name]
	if !ok {
		t.Fatalf("parameter %s missing from snapshot", name)
	}
	return st.SP
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	reg := reactor.NewDefaultRegistry()
	rec := &sleepRecorder{}
	ex := NewExecutor(reg, WithSleep(rec.sleep))

	p := Plan{Steps: []Step{
		ReadStep{Parameters: []string{"DO", "Temp"}},
		WriteStep{Values: map[string]float64{"Agit": 400}},
		WaitStep{Seconds: 1},
		WriteStep{Values: map[string]float64{"Agit": 300}},
	}}

	res := ex.Execute(p)

	if !res.Completed || res.Err != nil || res.FailedStep != 0 {
		t.Fatalf("Expected completed run, got %+v", res)
	}
	if len(res.Log) != 4 {
		t.Fatalf("Expected 4 log entries, got %d", len(res.Log))
	}
	wantTypes := []string{"read", "write", "wait", "write"}
	for i, entry := range res.Log {
		if entry.Step != i+1 {
			t.Errorf("entry %d: Step = %d, want %d", i, entry.Step, i+1)
		}
		if entry.Type != wantTypes[i] {
			t.Errorf("entry %d: Type = %q, want %q", i, entry.Type, wantTypes[i])
		}
		if entry.Status != models.StepStatusSuccess {
			t.Errorf("entry %d: Status = %q, want Success", i, entry.Status)
		}
	}

	readings, ok := res.Log[0].Details.(map[string]float64)
	if !ok || len(readings) != 2 {
		t.Errorf("Expected read details with 2 readings, got %#v", res.Log[0].Details)
	}
	if got := res.Log[2].Details; got != "Waited for 1 seconds." {
		t.Errorf("wait details = %v", got)
	}
	if len(rec.calls) != 1 || rec.calls[0] != time.Second {
		t.Errorf("Expected one 1s sleep, got %v", rec.calls)
	}
	if sp := setpoint(t, reg, "Agit"); sp != 300 {
		t.Errorf("Agit SP = %v, want 300", sp)
	}
}

func TestExecute_AbortsOnUnknownRead(t *testing.T) {
	reg := reactor.NewDefaultRegistry()
	ex := NewExecutor(reg, WithSleep(func(time.Duration) {}))

	res := ex.Execute(Plan{Steps: []Step{
		ReadStep{Parameters: []string{"NoSuchParam"}},
		WriteStep{Values: map[string]float64{"Agit": 400}},
	}})

	if res.Completed {
		t.Fatal("Expected aborted run")
	}
	if res.FailedStep != 1 {
		t.Errorf("FailedStep = %d, want 1", res.FailedStep)
	}
	if len(res.Log) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(res.Log))
	}
	entry := res.Log[0]
	if entry.Status != models.StepStatusError {
		t.Errorf("Status = %q, want Error", entry.Status)
	}
	if entry.Details != "Unknown parameter: NoSuchParam" {
		t.Errorf("Details = %v", entry.Details)
	}
	if !errors.Is(res.Err, reactor.ErrUnknownParameter) {
		t.Errorf("Expected ErrUnknownParameter, got %v", res.Err)
	}
	if sp := setpoint(t, reg, "Agit"); sp != 300 {
		t.Errorf("Agit SP = %v, want 300 (later steps must not run)", sp)
	}
}

func TestExecute_EarlierStepsAreNotRolledBack(t *testing.T) {
	reg := reactor.NewDefaultRegistry()
	ex := NewExecutor(reg)

	res := ex.Execute(Plan{Steps: []Step{
		WriteStep{Values: map[string]float64{"Temp": 40}},
		UnknownStep{Tag: "dance"},
		WriteStep{Values: map[string]float64{"Temp": 30}},
	}})

	if res.FailedStep != 2 || len(res.Log) != 2 {
		t.Fatalf("Expected abort at step 2 with 2 entries, got %+v", res)
	}
	if res.Log[1].Type != "dance" || res.Log[1].Details != "Unknown step type: dance" {
		t.Errorf("Unexpected entry: %+v", res.Log[1])
	}
	if !errors.Is(res.Err, ErrUnknownStepType) {
		t.Errorf("Expected ErrUnknownStepType, got %v", res.Err)
	}
	if sp := setpoint(t, reg, "Temp"); sp != 40 {
		t.Errorf("Temp SP = %v, want 40", sp)
	}
}

func TestExecute_WriteWithUnknownEntryStillSucceeds(t *testing.T) {
	reg := reactor.NewDefaultRegistry()
	ex := NewExecutor(reg)

	res := ex.Execute(Plan{Steps: []Step{
		WriteStep{Values: map[string]float64{"Foo": 1, "Agit": 900}},
	}})

	if !res.Completed {
		t.Fatalf("Expected completed run, got %+v", res)
	}
	details, ok := res.Log[0].Details.(map[string]string)
	if !ok {
		t.Fatalf("Expected map details, got %#v", res.Log[0].Details)
	}
	if details["Foo"] != "Error: Unknown parameter Foo" {
		t.Errorf("Foo outcome = %q", details["Foo"])
	}
	if details["Agit"] != "Success (Clipped from 900.0 to 800.0)" {
		t.Errorf("Agit outcome = %q", details["Agit"])
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	res := NewExecutor(reactor.NewDefaultRegistry()).Execute(Plan{})
	if !res.Completed || len(res.Log) != 0 {
		t.Errorf("Expected empty completed run, got %+v", res)
	}
}

func TestExecute_Observer(t *testing.T) {
	var seen []models.LogEntry
	ex := NewExecutor(reactor.NewDefaultRegistry(),
		WithObserver(func(e models.LogEntry) { seen = append(seen, e) }))

	ex.Execute(Plan{Steps: []Step{
		ReadStep{Parameters: []string{"pH"}},
		ReadStep{Parameters: []string{"bogus"}},
		ReadStep{Parameters: []string{"pH"}},
	}})

	if len(seen) != 2 {
		t.Fatalf("Expected observer to see 2 steps, got %d", len(seen))
	}
	if seen[1].Status != models.StepStatusError {
		t.Errorf("Expected second observed step to be an error, got %q", seen[1].Status)
	}
}

func TestWaitStep_NonPositiveDoesNotSleep(t *testing.T) {
	rec := &sleepRecorder{}
	env := Env{Sleep: rec.sleep}

	for _, secs := range []int{0, -3} {
		out := WaitStep{Seconds: secs}.Run(env)
		if out.Err != nil {
			t.Errorf("wait %d: unexpected error %v", secs, out.Err)
		}
	}
	if len(rec.calls) != 0 {
		t.Errorf("Expected no sleeps, got %v", rec.calls)
	}
}

func TestFromSpec(t *testing.T) {
	secs := 5
	spec := models.PlanSpec{
		Steps: []models.StepSpec{
			{Type: "read", Parameters: []string{"pH"}},
			{Type: "write", Values: map[string]float64{"pH": 7}},
			{Type: "wait", Seconds: &secs},
			{Type: "calibrate"},
			{Type: "read"},
			{Type: "write"},
			{Type: "wait"},
		},
		AllowOnSuccess: true,
		Note:           "n",
	}

	p := FromSpec(spec)

	if len(p.Steps) != 7 {
		t.Fatalf("Expected 7 steps, got %d", len(p.Steps))
	}
	if _, ok := p.Steps[0].(ReadStep); !ok {
		t.Errorf("step 1: got %T", p.Steps[0])
	}
	if _, ok := p.Steps[1].(WriteStep); !ok {
		t.Errorf("step 2: got %T", p.Steps[1])
	}
	if w, ok := p.Steps[2].(WaitStep); !ok || w.Seconds != 5 {
		t.Errorf("step 3: got %#v", p.Steps[2])
	}
	if u, ok := p.Steps[3].(UnknownStep); !ok || u.Type() != "calibrate" {
		t.Errorf("step 4: got %#v", p.Steps[3])
	}
	for i := 4; i < 7; i++ {
		m, ok := p.Steps[i].(MalformedStep)
		if !ok {
			t.Errorf("step %d: got %T, want MalformedStep", i+1, p.Steps[i])
			continue
		}
		if out := m.Run(Env{}); !errors.Is(out.Err, ErrMalformedStep) {
			t.Errorf("step %d: expected ErrMalformedStep, got %v", i+1, out.Err)
		}
	}
	if !p.AllowOnSuccess || p.Note != "n" {
		t.Errorf("Plan metadata not carried: %+v", p)
	}
}

func TestGenerate_IsExecutable(t *testing.T) {
	spec := Generate("increase oxygen")
	if len(spec.Steps) != 4 || !spec.AllowOnSuccess || spec.Note == "" {
		t.Fatalf("Unexpected generated plan: %+v", spec)
	}

	reg := reactor.NewDefaultRegistry()
	rec := &sleepRecorder{}
	res := NewExecutor(reg, WithSleep(rec.sleep)).Execute(FromSpec(spec))

	if !res.Completed {
		t.Fatalf("Generated plan failed: %+v", res)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 10*time.Second {
		t.Errorf("Expected one 10s wait, got %v", rec.calls)
	}
	if sp := setpoint(t, reg, "Agit"); sp != 350 {
		t.Errorf("Agit SP = %v, want 350", sp)
	}
	if sp := setpoint(t, reg, "Air"); sp != 1.0 {
		t.Errorf("Air SP = %v, want 1.0", sp)
	}
}
