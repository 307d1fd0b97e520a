package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/dynsph/internal/autotune"
	"github.com/san-kum/dynsph/internal/cases"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/forces"
	"github.com/san-kum/dynsph/internal/integrators"
	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDp          = 0.02
	DefaultDuration    = 1.0
	DefaultCoefh       = 0.866025
	DefaultCoefSound   = 20.0
	DefaultRhop0       = 1000.0
	DefaultGamma       = 7.0
	DefaultGravity     = -9.81
	DefaultVisco       = 0.01
	DefaultCFL         = 0.2
	DefaultDtMin       = 1e-7
	DefaultDtMax       = 1e-3
	DefaultVerletSteps = 40
	DefaultOverprov    = 0.05
)

// Config is the full run configuration. Each field group maps to one
// section of an INI file and one mapping of a YAML file.
type Config struct {
	Case        CaseConfig        `yaml:"case" gcfg:"case"`
	Physics     PhysicsConfig     `yaml:"physics" gcfg:"physics"`
	Integration IntegrationConfig `yaml:"integration" gcfg:"integration"`
	Tuning      TuningConfig      `yaml:"tuning" gcfg:"tuning"`
	Memory      MemoryConfig      `yaml:"memory" gcfg:"memory"`
	Output      OutputConfig      `yaml:"output" gcfg:"output"`
}

type CaseConfig struct {
	Name        string  `yaml:"name" gcfg:"name"`
	Dp          float64 `yaml:"dp" gcfg:"dp"`
	TankX       float64 `yaml:"tank_x" gcfg:"tank-x"`
	TankY       float64 `yaml:"tank_y" gcfg:"tank-y"`
	TankZ       float64 `yaml:"tank_z" gcfg:"tank-z"`
	FluidX      float64 `yaml:"fluid_x" gcfg:"fluid-x"`
	FluidY      float64 `yaml:"fluid_y" gcfg:"fluid-y"`
	FluidZ      float64 `yaml:"fluid_z" gcfg:"fluid-z"`
	BodyX       float64 `yaml:"body_x" gcfg:"body-x"`
	BodyY       float64 `yaml:"body_y" gcfg:"body-y"`
	BodyZ       float64 `yaml:"body_z" gcfg:"body-z"`
	BodyDensity float64 `yaml:"body_density" gcfg:"body-density"`
	Velocity    float64 `yaml:"velocity" gcfg:"velocity"`
	Layers      int     `yaml:"layers" gcfg:"layers"`
	PaddleAmp   float64 `yaml:"paddle_amp" gcfg:"paddle-amp"`
	PaddleFreq  float64 `yaml:"paddle_freq" gcfg:"paddle-freq"`
}

type PhysicsConfig struct {
	// Coefh scales h = coefh*sqrt(3)*dp.
	Coefh       float64 `yaml:"coefh" gcfg:"coefh"`
	CoefSound   float64 `yaml:"coef_sound" gcfg:"coef-sound"`
	Rhop0       float64 `yaml:"rhop0" gcfg:"rhop0"`
	Gamma       float64 `yaml:"gamma" gcfg:"gamma"`
	Gravity     float64 `yaml:"gravity" gcfg:"gravity"`
	Visco       float64 `yaml:"visco" gcfg:"visco"`
	DeltaSph    float64 `yaml:"delta_sph" gcfg:"delta-sph"`
	Temperature bool    `yaml:"temperature" gcfg:"temperature"`
	Diffusivity float64 `yaml:"diffusivity" gcfg:"diffusivity"`
	Shifting    string  `yaml:"shifting" gcfg:"shifting"`
	ShiftCoef   float64 `yaml:"shift_coef" gcfg:"shift-coef"`
	ShiftTfs    float64 `yaml:"shift_tfs" gcfg:"shift-tfs"`
	Dem         bool    `yaml:"dem" gcfg:"dem"`
}

type IntegrationConfig struct {
	Scheme      string  `yaml:"scheme" gcfg:"scheme"`
	VerletSteps int     `yaml:"verlet_steps" gcfg:"verlet-steps"`
	CFL         float64 `yaml:"cfl" gcfg:"cfl"`
	DtMin       float64 `yaml:"dt_min" gcfg:"dt-min"`
	DtMax       float64 `yaml:"dt_max" gcfg:"dt-max"`
	DtInit      float64 `yaml:"dt_init" gcfg:"dt-init"`
	DtFixed     float64 `yaml:"dt_fixed" gcfg:"dt-fixed"`
	Duration    float64 `yaml:"duration" gcfg:"duration"`
	MaxSteps    int     `yaml:"max_steps" gcfg:"max-steps"`
	// Symmetry only selects the tuning key; the kernels see the whole domain.
	Symmetry    bool    `yaml:"symmetry" gcfg:"symmetry"`
}

type TuningConfig struct {
	Mode       string `yaml:"mode" gcfg:"mode"`
	Candidates []int  `yaml:"candidates" gcfg:"candidate"`
	Fluid      int    `yaml:"fluid" gcfg:"fluid"`
	Bound      int    `yaml:"bound" gcfg:"bound"`
	Dem        int    `yaml:"dem" gcfg:"dem"`
	Repeats    int    `yaml:"repeats" gcfg:"repeats"`
}

type MemoryConfig struct {
	Overprovision float64 `yaml:"overprovision" gcfg:"overprovision"`
	Margin        int     `yaml:"margin" gcfg:"margin"`
	Backend       string  `yaml:"backend" gcfg:"backend"`
	Workers       int     `yaml:"workers" gcfg:"workers"`
	DeviceLimitMB int64   `yaml:"device_limit_mb" gcfg:"device-limit-mb"`
	HostLimitMB   int64   `yaml:"host_limit_mb" gcfg:"host-limit-mb"`
}

type OutputConfig struct {
	DataDir   string  `yaml:"data_dir" gcfg:"data-dir"`
	PartEvery float64 `yaml:"part_every" gcfg:"part-every"`
	Save      bool    `yaml:"save" gcfg:"save"`
}

func DefaultConfig() *Config {
	tune := autotune.DefaultConfig()
	return &Config{
		Case: CaseConfig{
			Name:        "dambreak",
			Dp:          DefaultDp,
			TankX:       1.6,
			TankY:       0.2,
			TankZ:       0.6,
			FluidX:      0.4,
			FluidY:      0.2,
			FluidZ:      0.3,
			BodyDensity: 500,
			Layers:      2,
		},
		Physics: PhysicsConfig{
			Coefh:     DefaultCoefh,
			CoefSound: DefaultCoefSound,
			Rhop0:     DefaultRhop0,
			Gamma:     DefaultGamma,
			Gravity:   DefaultGravity,
			Visco:     DefaultVisco,
			DeltaSph:  0.1,
			Shifting:  "none",
			ShiftCoef: 2,
			ShiftTfs:  2.75,
		},
		Integration: IntegrationConfig{
			Scheme:      "symplectic",
			VerletSteps: DefaultVerletSteps,
			CFL:         DefaultCFL,
			DtMin:       DefaultDtMin,
			DtMax:       DefaultDtMax,
			Duration:    DefaultDuration,
		},
		Tuning: TuningConfig{
			Mode:       tune.Mode.String(),
			Candidates: tune.Candidates,
			Fluid:      tune.Fixed[autotune.ForcesFluid],
			Bound:      tune.Fixed[autotune.ForcesBound],
			Dem:        tune.Fixed[autotune.ForcesDem],
			Repeats:    tune.Repeats,
		},
		Memory: MemoryConfig{
			Overprovision: DefaultOverprov,
			Backend:       "auto",
		},
		Output: OutputConfig{
			DataDir: "data",
		},
	}
}

// Load reads a YAML or INI file over the defaults. The format follows the
// file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".gcfg", ".cfg":
		// gcfg appends multi-valued variables, so the file's candidate
		// list replaces the defaults instead of extending them.
		defaults := cfg.Tuning.Candidates
		cfg.Tuning.Candidates = nil
		if err := gcfg.ReadFileInto(cfg, path); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if len(cfg.Tuning.Candidates) == 0 {
			cfg.Tuning.Candidates = defaults
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Save always writes YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := integrators.ParseScheme(c.Integration.Scheme); err != nil {
		return err
	}
	if _, err := autotune.ParseMode(c.Tuning.Mode); err != nil {
		return err
	}
	if _, err := forces.ParseShiftMode(c.Physics.Shifting); err != nil {
		return err
	}
	switch strings.ToLower(c.Memory.Backend) {
	case "", "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Memory.Backend)
	}
	switch {
	case c.Physics.Coefh <= 0:
		return fmt.Errorf("config: coefh must be positive, got %g", c.Physics.Coefh)
	case c.Physics.CoefSound <= 0:
		return fmt.Errorf("config: coef_sound must be positive, got %g", c.Physics.CoefSound)
	case c.Memory.Overprovision < 0:
		return fmt.Errorf("config: overprovision must not be negative, got %g", c.Memory.Overprovision)
	case c.Integration.Duration <= 0 && c.Integration.MaxSteps <= 0:
		return fmt.Errorf("config: duration or max_steps must be positive")
	}
	return c.Geometry().Validate()
}

// H is the smoothing length.
func (c *Config) H() float64 {
	return c.Physics.Coefh * 1.7320508075688772 * c.Case.Dp
}

// Geometry returns the case sizes.
func (c *Config) Geometry() cases.Geometry {
	cc := c.Case
	return cases.Geometry{
		Dp:          cc.Dp,
		Tank:        dynamo.Double3{X: cc.TankX, Y: cc.TankY, Z: cc.TankZ},
		Fluid:       dynamo.Double3{X: cc.FluidX, Y: cc.FluidY, Z: cc.FluidZ},
		Body:        dynamo.Double3{X: cc.BodyX, Y: cc.BodyY, Z: cc.BodyZ},
		BodyDensity: cc.BodyDensity,
		Velocity:    cc.Velocity,
		PaddleAmp:   cc.PaddleAmp,
		PaddleFreq:  cc.PaddleFreq,
		Layers:      cc.Layers,
		Rhop0:       c.Physics.Rhop0,
	}
}

// Tune returns the tuner configuration.
func (c *Config) Tune() (autotune.Config, error) {
	mode, err := autotune.ParseMode(c.Tuning.Mode)
	if err != nil {
		return autotune.Config{}, err
	}
	out := autotune.DefaultConfig()
	out.Mode = mode
	if len(c.Tuning.Candidates) > 0 {
		out.Candidates = append([]int(nil), c.Tuning.Candidates...)
	}
	if c.Tuning.Repeats > 0 {
		out.Repeats = c.Tuning.Repeats
	}
	for cat, n := range map[autotune.Category]int{
		autotune.ForcesFluid: c.Tuning.Fluid,
		autotune.ForcesBound: c.Tuning.Bound,
		autotune.ForcesDem:   c.Tuning.Dem,
	} {
		if n > 0 {
			out.Fixed[cat] = n
		}
	}
	return out, nil
}
