package config

// Presets are named variations of the default configuration, grouped by
// case generator.
var Presets = map[string]map[string]func(c *Config){
	"dambreak": {
		"small": func(c *Config) {
			c.Case.Dp = 0.05
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 0.8, 0.2, 0.4
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 0.2, 0.2, 0.2
			c.Integration.Duration = 0.2
		},
		"standard": func(c *Config) {
			c.Integration.Duration = 1.5
		},
		"verlet": func(c *Config) {
			c.Integration.Scheme = "verlet"
			c.Integration.VerletSteps = 40
			c.Integration.Duration = 1.0
		},
	},
	"floating": {
		"box": func(c *Config) {
			c.Case.Dp = 0.025
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 1.0, 0.5, 0.6
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 1.0, 0.5, 0.3
			c.Case.BodyX, c.Case.BodyY, c.Case.BodyZ = 0.2, 0.2, 0.2
			c.Case.BodyDensity = 500
			c.Integration.Duration = 2.0
			c.Output.PartEvery = 0.05
		},
		"dem": func(c *Config) {
			c.Case.Dp = 0.025
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 0.6, 0.4, 0.6
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 0.6, 0.4, 0.15
			c.Case.BodyX, c.Case.BodyY, c.Case.BodyZ = 0.15, 0.15, 0.15
			c.Case.BodyDensity = 1500
			c.Physics.Dem = true
			c.Integration.Duration = 1.0
		},
	},
	"wavemaker": {
		"small": func(c *Config) {
			c.Case.Dp = 0.04
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 1.2, 0.16, 0.4
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 1.2, 0.16, 0.2
			c.Case.PaddleAmp, c.Case.PaddleFreq = 0.03, 1.2
			c.Integration.Duration = 1.0
		},
		"standard": func(c *Config) {
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 3.0, 0.2, 0.6
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 3.0, 0.2, 0.3
			c.Case.PaddleAmp, c.Case.PaddleFreq = 0.05, 1.0
			c.Integration.Duration = 4.0
		},
	},
	"channel": {
		"flow": func(c *Config) {
			c.Case.Dp = 0.02
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 0.6, 0.2, 0.2
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 0.6, 0.2, 0.1
			c.Case.Velocity = 0.5
			c.Physics.Shifting = "nobound"
			c.Integration.Duration = 1.0
		},
		"tuned": func(c *Config) {
			c.Case.Dp = 0.02
			c.Case.TankX, c.Case.TankY, c.Case.TankZ = 0.6, 0.2, 0.2
			c.Case.FluidX, c.Case.FluidY, c.Case.FluidZ = 0.6, 0.2, 0.1
			c.Case.Velocity = 0.5
			c.Tuning.Mode = "auto"
			c.Integration.Duration = 0.5
		},
	},
}

// GetPreset returns the default configuration with the named variation of
// a case applied, or nil when either name is unknown.
func GetPreset(name, preset string) *Config {
	casePresets, ok := Presets[name]
	if !ok {
		return nil
	}
	apply, ok := casePresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Case.Name = name
	apply(cfg)
	return cfg
}

func ListPresets(name string) []string {
	casePresets, ok := Presets[name]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(casePresets))
	for n := range casePresets {
		names = append(names, n)
	}
	return names
}
