package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/bioreactor/internal/models"
)

func TestSuggestions_Commands(t *testing.T) {
	s := NewSuggestions()

	s.Update("/tr")
	if !s.IsVisible() {
		t.Fatal("Expected suggestions for /tr")
	}
	text, ok := s.Accept()
	if !ok || text != "trend " {
		t.Errorf("Accept = %q, %v", text, ok)
	}

	s.Update("set Agit=400")
	if s.IsVisible() {
		t.Error("Plain input should not show suggestions")
	}
}

func TestSuggestions_ParametersCompleteLastWord(t *testing.T) {
	s := NewSuggestions()
	s.SetParameters([]string{"Agit", "Air", "DO"})

	s.Update("read DO @a")
	if !s.IsVisible() {
		t.Fatal("Expected parameter suggestions")
	}
	first, _ := s.Accept()
	s.Next()
	second, _ := s.Accept()

	if first != "read DO Agit" || second != "read DO Air" {
		t.Errorf("Accept gave %q then %q", first, second)
	}

	s.Update("@zzz")
	if s.IsVisible() {
		t.Error("Expected no match for @zzz")
	}
}

func TestFormatLogEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry models.LogEntry
		want  string
	}{
		{
			"string details",
			models.LogEntry{Step: 3, Type: "wait", Status: models.StepStatusSuccess, Details: "Waited for 10 seconds."},
			"Step 3 (wait) Success: Waited for 10 seconds.",
		},
		{
			"map details are sorted",
			models.LogEntry{Step: 1, Type: "read", Status: models.StepStatusSuccess, Details: map[string]interface{}{"Temp": 37.0, "DO": 60.0}},
			"Step 1 (read) Success: DO: 60, Temp: 37",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogEntry(tt.entry); got != tt.want {
				t.Errorf("formatLogEntry = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribePlan(t *testing.T) {
	secs := 10
	lines := describePlan(models.PlanSpec{Steps: []models.StepSpec{
		{Type: "read", Parameters: []string{"DO", "Temp"}},
		{Type: "write", Values: map[string]float64{"Air": 1.5, "Agit": 400}},
		{Type: "wait", Seconds: &secs},
		{Type: "dance"},
	}})
	want := []string{"read DO, Temp", "write Agit=400.0 Air=1.5", "wait 10s", "dance"}
	if len(lines) != len(want) {
		t.Fatalf("describePlan = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestApp_StatusAndSelection(t *testing.T) {
	a := New("http://127.0.0.1:1")
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	a.Update(statusLoadedMsg{rows: []ParameterRow{
		{Name: "Agit", PV: 301.5, SP: 300},
		{Name: "DO", PV: 59.9, SP: 60},
	}})

	if !a.daemonOnline {
		t.Error("Expected daemon online after status load")
	}
	view := a.View()
	if !strings.Contains(view, "Agit") || !strings.Contains(view, "301.50") {
		t.Errorf("View missing status row:\n%s", view)
	}

	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	if a.selectedIdx != 1 {
		t.Errorf("selectedIdx = %d, want 1", a.selectedIdx)
	}
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	if a.selectedIdx != 1 {
		t.Errorf("selectedIdx moved past the last row: %d", a.selectedIdx)
	}
}

func TestApp_PlanLifecycle(t *testing.T) {
	a := New("http://127.0.0.1:1")
	secs := 1
	spec := &models.PlanSpec{Steps: []models.StepSpec{{Type: "wait", Seconds: &secs}}, Note: "n"}

	a.Update(planGeneratedMsg{spec: spec})
	if a.pending == nil {
		t.Fatal("Expected pending plan")
	}

	a.Update(planStartedMsg{spec: *spec})
	if !a.busy {
		t.Error("Expected busy while plan runs")
	}
	a.Update(errMsg{err: errTest("poll failed"), poll: true})
	if !a.busy {
		t.Error("A poll error must not clear the running plan")
	}

	a.Update(planDoneMsg{run: &PlanRun{Completed: false, Log: []models.LogEntry{
		{Step: 1, Type: "read", Status: models.StepStatusError, Details: "Unknown parameter: X"},
	}}})
	if a.busy {
		t.Error("Expected not busy after plan done")
	}
	if a.pending == nil {
		t.Error("Aborted plan should stay pending")
	}
	if !strings.HasPrefix(a.message, "Error") {
		t.Errorf("message = %q", a.message)
	}
	if len(a.events) == 0 || a.events[len(a.events)-1].Level != "error" {
		t.Errorf("Expected error event, got %+v", a.events)
	}
}

func TestApp_ExecuteWithoutPlan(t *testing.T) {
	a := New("http://127.0.0.1:1")
	msg := a.executeCommand("exec")()
	res, ok := msg.(commandResultMsg)
	if !ok || !strings.Contains(res.message, "No pending plan") {
		t.Errorf("Unexpected result: %#v", msg)
	}

	msg = a.executeCommand("set Agit")()
	if res, ok := msg.(commandResultMsg); !ok || !strings.HasPrefix(res.message, "Error") {
		t.Errorf("Expected parse error, got %#v", msg)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestClient_ExecutePlanAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detail": map[string]interface{}{
				"log": []models.LogEntry{{Step: 1, Type: "read", Status: models.StepStatusError, Details: "Unknown parameter: X"}},
			},
			"execution_id": "abc",
		})
	}))
	defer srv.Close()

	run, err := NewClient(srv.URL).ExecutePlan(models.PlanSpec{Steps: []models.StepSpec{}})
	if err != nil {
		t.Fatalf("ExecutePlan failed: %v", err)
	}
	if run.Completed || run.ExecutionID != "abc" || len(run.Log) != 1 {
		t.Errorf("Unexpected run: %+v", run)
	}
}

func TestClient_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Unknown parameter: Nope"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Read([]string{"Nope"})
	if err == nil || err.Error() != "API error: Unknown parameter: Nope" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_StatusSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pH":{"PV":7,"SP":7},"Agit":{"PV":300,"SP":300}}`))
	}))
	defer srv.Close()

	rows, err := NewClient(srv.URL).Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "Agit" || rows[1].Name != "pH" {
		t.Errorf("Unexpected rows: %+v", rows)
	}
}

func TestClient_ExecutionAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/executions/abc":
			w.Write([]byte(`{"id":"abc","status":"completed","log":[{"step":1,"type":"wait","status":"Success","details":"Waited for 0 seconds."}]}`))
		case "/health":
			w.Write([]byte(`{"ok":true,"db":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"execution not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	exec, err := c.Execution("abc")
	if err != nil {
		t.Fatalf("Execution failed: %v", err)
	}
	if exec.Status != models.ExecutionStatusCompleted || len(exec.Log) != 1 {
		t.Errorf("Unexpected execution: %+v", exec)
	}
	if _, err := c.Execution("missing"); err == nil {
		t.Error("Expected error for missing execution")
	}

	ok, err := c.CheckHealth()
	if err != nil || !ok {
		t.Errorf("CheckHealth = %v, %v", ok, err)
	}
}
