package sim

import (
	"fmt"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/particles"
)

type Config struct {
	// Duration is the simulated time to reach.
	Duration float64
	// MaxSteps stops the run early when positive.
	MaxSteps int
	Periodic particles.Periodic
	Symmetry bool
	// PartEvery is the simulated time between particle snapshots handed to
	// part observers. Zero disables them.
	PartEvery float64
}

func DefaultConfig() Config {
	return Config{Duration: 1.0}
}

func (c Config) Validate() error {
	if c.Duration <= 0 && c.MaxSteps <= 0 {
		return fmt.Errorf("sim: duration or step limit must be positive")
	}
	if c.PartEvery < 0 {
		return fmt.Errorf("sim: part interval must not be negative, got %g", c.PartEvery)
	}
	if c.Periodic.Enabled() {
		return c.Periodic.Validate()
	}
	return nil
}

// Observer is notified after every completed step.
type Observer interface {
	OnStep(s metrics.Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s metrics.Sample)

func (f ObserverFunc) OnStep(s metrics.Sample) { f(s) }

// PartObserver receives a by-value copy of the normal particles at every
// output time. Returning an error stops the run.
type PartObserver func(part int, t float64, sn *particles.Snapshot) error

type Result struct {
	Steps   int
	Time    float64
	Parts   int
	Clamps  int
	Counts  dynamo.Counts
	Series  *metrics.Series
	Metrics map[string]float64
	Timers  string
}

// StepError attaches the step and simulated time to a failure inside a step.
type StepError struct {
	Step  int
	Time  float64
	Stage string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f) %s: %v", e.Step, e.Time, e.Stage, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
