package simulation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
)

func newTestEngine(t *testing.T, historySize int) (*Engine, *reactor.Registry) {
	t.Helper()
	reg := reactor.NewDefaultRegistry()
	cfg := &Config{TickInterval: time.Second, Seed: 42, HistorySize: historySize}
	return New(reg, cfg, nil), reg
}

func TestRelax(t *testing.T) {
	tests := []struct {
		name                string
		pv, sp, rate, dt, u float64
		want                float64
	}{
		{"at setpoint, mid noise", 37, 37, 0.1, 1, 0.5, 37},
		{"zero setpoint has no noise", 5, 0, 1, 1, 0.0, 4.5},
		{"zero setpoint has no noise (high u)", 5, 0, 1, 1, 0.99, 4.5},
		{"relaxes toward setpoint", 0, 100, 0.5, 1, 0.5, 5},
		{"longer tick moves further", 0, 100, 0.5, 2, 0.5, 10},
		{"lowest noise", 50, 50, 0.1, 1, 0, 49.75},
		{"rounds to two places", 1, 1, 0, 1, 0.5123, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relax(tt.pv, tt.sp, tt.rate, tt.dt, tt.u)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Relax = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelax_NoiseBound(t *testing.T) {
	for i := 0; i < 100; i++ {
		u := float64(i) / 100
		got := Relax(300, 300, 10, 1, u)
		if math.Abs(got-300) > 300*noiseFraction/2+0.005 {
			t.Fatalf("u=%v: noise %v exceeds 0.5%% of setpoint", u, got-300)
		}
	}
}

func TestTick_ZeroSetpointStaysPut(t *testing.T) {
	e, reg := newTestEngine(t, 10)

	for i := 0; i < 100; i++ {
		e.Tick()
	}

	snap := reg.Snapshot()
	for _, name := range []string{"FeedA", "FeedB"} {
		if snap[name].PV != 0 {
			t.Errorf("%s PV = %v, want exactly 0", name, snap[name].PV)
		}
	}
	if e.Ticks() != 100 {
		t.Errorf("Ticks() = %d, want 100", e.Ticks())
	}
}

func TestTick_ConvergesToSetpoint(t *testing.T) {
	tests := []struct {
		name      string
		setpoint  float64
		tolerance float64
	}{
		{"Temp", 42, 1.0},
		{"DO", 20, 1.0},
		{"Agit", 500, 5.0},
		{"FeedA", 4, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reg := newTestEngine(t, 10)
			reg.Write(map[string]float64{tt.name: tt.setpoint})

			// Burn in, then average: noise is zero-mean, so the mean PV
			// should sit on the setpoint.
			for i := 0; i < 1000; i++ {
				e.Tick()
			}
			var sum float64
			const samples = 2000
			for i := 0; i < samples; i++ {
				e.Tick()
				v, err := reg.Read([]string{tt.name})
				if err != nil {
					t.Fatalf("Read failed: %v", err)
				}
				sum += v[tt.name]
			}
			mean := sum / samples
			if math.Abs(mean-tt.setpoint) > tt.tolerance {
				t.Errorf("mean PV %v not within %v of setpoint %v", mean, tt.tolerance, tt.setpoint)
			}
		})
	}
}

func TestTick_SetpointWriteVisibleNextTick(t *testing.T) {
	e, reg := newTestEngine(t, 10)

	reg.Write(map[string]float64{"Agit": 600})
	e.Tick()

	// Agit relaxes with rate*dt/10 == 1, so one tick lands on SP +/- noise.
	pv := reg.Snapshot()["Agit"].PV
	if math.Abs(pv-600) > 600*noiseFraction/2+0.01 {
		t.Errorf("Agit PV = %v after one tick, want ~600", pv)
	}
}

func TestEngine_History(t *testing.T) {
	e, _ := newTestEngine(t, 5)

	vals, err := e.History("Temp")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(vals) != 0 {
		t.Errorf("Expected empty history before ticks, got %v", vals)
	}

	for i := 0; i < 3; i++ {
		e.Tick()
	}
	vals, _ = e.History("Temp")
	if len(vals) != 3 {
		t.Errorf("Expected 3 samples, got %d", len(vals))
	}

	for i := 0; i < 10; i++ {
		e.Tick()
	}
	vals, _ = e.History("Temp")
	if len(vals) != 5 {
		t.Errorf("Expected history capped at 5, got %d", len(vals))
	}

	if _, err := e.History("Nope"); !errors.Is(err, reactor.ErrUnknownParameter) {
		t.Errorf("Expected ErrUnknownParameter, got %v", err)
	}
}

func TestHistory_OrderOldestFirst(t *testing.T) {
	h := NewHistory([]string{"X"}, 3)
	for i := 1; i <= 5; i++ {
		h.Record(map[string]models.ParameterStatus{"X": {PV: float64(i)}})
	}

	got := h.Values("X")
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Values = %v, want %v", got, want)
		}
	}
	if h.Values("Y") != nil {
		t.Error("Expected nil for unknown name")
	}
}

func TestEngine_OnTick(t *testing.T) {
	e, _ := newTestEngine(t, 5)

	var calls int
	var last map[string]models.ParameterStatus
	e.OnTick(func(snap map[string]models.ParameterStatus) {
		calls++
		last = snap
	})

	e.Tick()
	e.Tick()

	if calls != 2 {
		t.Errorf("Expected 2 observer calls, got %d", calls)
	}
	if len(last) != 7 {
		t.Errorf("Expected 7 parameters in snapshot, got %d", len(last))
	}
}

func TestEngine_StartStop(t *testing.T) {
	reg := reactor.NewDefaultRegistry()
	e := New(reg, &Config{TickInterval: 10 * time.Millisecond, Seed: 1, HistorySize: 10}, nil)

	e.Start()
	time.Sleep(100 * time.Millisecond)
	e.Stop()

	n := e.Ticks()
	if n == 0 {
		t.Fatal("Expected the loop to tick at least once")
	}

	time.Sleep(30 * time.Millisecond)
	if e.Ticks() != n {
		t.Error("Engine kept ticking after Stop")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig invalid: %v", err)
	}
	if err := (&Config{TickInterval: 0, HistorySize: 1}).Validate(); err == nil {
		t.Error("Expected error for zero tick interval")
	}
	if err := (&Config{TickInterval: time.Second, HistorySize: 0}).Validate(); err == nil {
		t.Error("Expected error for zero history size")
	}
}
