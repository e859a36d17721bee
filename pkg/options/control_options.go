package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ControlOptions)(nil)

const (
	// ControlModeMQTT drives real vehicles over the MQTT control link.
	ControlModeMQTT = "mqtt"
	// ControlModeSim drives simulated vehicles in-process. Used when no
	// vehicle control capability is configured, and by the test suite.
	ControlModeSim = "sim"
)

// ControlOptions selects and configures the vehicle control capability.
type ControlOptions struct {
	// Mode is the vehicle control backend: "mqtt" or "sim".
	Mode string `json:"mode" mapstructure:"mode"`

	// SimTick is the simulation step interval (sim mode only).
	SimTick time.Duration `json:"sim-tick" mapstructure:"sim-tick"`

	// SimSpeed is the distance (degrees) a simulated vehicle covers per tick.
	SimSpeed float64 `json:"sim-speed" mapstructure:"sim-speed"`
}

// NewControlOptions creates a new ControlOptions with default values.
func NewControlOptions() *ControlOptions {
	return &ControlOptions{
		Mode:     ControlModeSim,
		SimTick:  time.Second,
		SimSpeed: 0.0001,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ControlOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	switch o.Mode {
	case ControlModeMQTT, ControlModeSim:
	default:
		errs = append(errs, fmt.Errorf("unknown control mode %q (want %q or %q)", o.Mode, ControlModeMQTT, ControlModeSim))
	}
	if o.SimTick <= 0 {
		errs = append(errs, fmt.Errorf("sim tick must be positive, got %s", o.SimTick))
	}
	if o.SimSpeed <= 0 {
		errs = append(errs, fmt.Errorf("sim speed must be positive, got %g", o.SimSpeed))
	}

	return errs
}

// AddFlags adds flags related to vehicle control to the specified FlagSet.
func (o *ControlOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Mode, "control.mode", o.Mode, "Vehicle control backend ('mqtt' or 'sim').")
	fs.DurationVar(&o.SimTick, "control.sim-tick", o.SimTick, "Simulation step interval (sim mode).")
	fs.Float64Var(&o.SimSpeed, "control.sim-speed", o.SimSpeed, "Simulated vehicle speed in degrees per tick (sim mode).")
}
