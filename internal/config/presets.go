package config

import "fmt"

// Preset names accepted by --preset.
const (
	PresetQuiet  = "quiet"
	PresetActive = "active"
)

// ApplyPreset overrides runtime tunables with a named preset.
// Presets are startup-only: they never touch the config file.
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "":
		return nil
	case PresetQuiet:
		c.Runtime.TickIntervalSec = 2.4
		c.Runtime.IdleIntervalMinSec = 0.30
		c.Runtime.IdleIntervalMaxSec = 0.70
		c.Runtime.HesitateIdleProb = 0.28
		c.Runtime.HesitatePauseProb = 0.34
		c.Runtime.LookJitterMinDeg = 0.8
		c.Runtime.LookJitterMaxDeg = 2.0
		c.Runtime.LookOvershootProb = 0.08
		c.Runtime.SmallStepMoveProb = 0.14
		c.Runtime.IntentTTLSec = 3.4
	case PresetActive:
		c.Runtime.TickIntervalSec = 1.8
		c.Runtime.IdleIntervalMinSec = 0.18
		c.Runtime.IdleIntervalMaxSec = 0.45
		c.Runtime.HesitateIdleProb = 0.10
		c.Runtime.HesitatePauseProb = 0.18
		c.Runtime.LookJitterMinDeg = 1.2
		c.Runtime.LookJitterMaxDeg = 3.4
		c.Runtime.LookOvershootProb = 0.28
		c.Runtime.SmallStepMoveProb = 0.26
		c.Runtime.IntentTTLSec = 2.4
	default:
		return fmt.Errorf("unknown preset %q", name)
	}
	return nil
}
