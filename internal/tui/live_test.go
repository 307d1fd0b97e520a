package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/sim"
)

func TestModelTracksSamples(t *testing.T) {
	m := newModel("dambreak", 1.0, 0, nil)
	for i := 1; i <= 3; i++ {
		next, _ := m.Update(sampleMsg{Step: i, Time: 0.25 * float64(i), Dt: 1e-4 * float64(i), Np: 900,
			Extrema: dynamo.Extrema{VelMax: float64(i)}})
		m = next.(model)
	}
	if m.last.Step != 3 || len(m.dts) != 3 || len(m.vels) != 3 {
		t.Errorf("unexpected model state %+v", m.last)
	}
	if p := m.progress(); p != 0.75 {
		t.Errorf("progress = %g, want 0.75", p)
	}
	view := m.View()
	for _, want := range []string{"dambreak", "running", "np=", "900"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelQuitCancels(t *testing.T) {
	cancelled := false
	m := newModel("channel", 0, 100, func() { cancelled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quit key should cancel the run")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModelDone(t *testing.T) {
	m := newModel("floating", 1.0, 0, nil)
	next, cmd := m.Update(doneMsg{result: &sim.Result{Steps: 10}, err: errors.New("boom")})
	m = next.(model)
	if !m.done || cmd == nil {
		t.Fatal("done message should finish the view")
	}
	view := m.View()
	if !strings.Contains(view, "failed") || !strings.Contains(view, "boom") {
		t.Errorf("view does not report the failure")
	}
}

func TestProgressBySteps(t *testing.T) {
	m := newModel("x", 0, 10, nil)
	m.last = metrics.Sample{Step: 20}
	if m.progress() != 1 {
		t.Errorf("progress should saturate, got %g", m.progress())
	}
}

func TestProject(t *testing.T) {
	pts := []point{
		{x: 0, z: 0, class: 'b'},
		{x: 1, z: 0, class: 'b'},
		{x: 0.5, z: 1, class: 'f'},
		{x: 0.5, z: 0.5, class: 'w'},
	}
	rows := project(pts, 11, 5)
	if len(rows) != 5 {
		t.Fatalf("got %d rows", len(rows))
	}
	joined := strings.Join(rows, "\n")
	for _, c := range []string{"#", "@", "~"} {
		if !strings.Contains(joined, c) {
			t.Errorf("canvas missing %q", c)
		}
	}
	if !strings.Contains(rows[0], "@") {
		t.Error("highest particle should be on the top row")
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		data []float64
		want string
	}{
		{nil, ""},
		{[]float64{1, 1, 1}, "▁▁▁"},
		{[]float64{0, 1}, "▁█"},
	}
	for _, tt := range tests {
		if got := sparkline(tt.data, 10); got != tt.want {
			t.Errorf("sparkline(%v) = %q, want %q", tt.data, got, tt.want)
		}
	}
}
