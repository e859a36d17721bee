package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TelemetryOptions)(nil)

// maxPollInterval bounds the telemetry cadence: beyond this the hub cannot
// detect arrivals or link loss promptly enough to drive missions.
const maxPollInterval = 5 * time.Second

// TelemetryOptions configures the telemetry synchronizer.
type TelemetryOptions struct {
	// PollInterval is the cadence at which vehicles without a push link are
	// polled for telemetry.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`

	// ArrivalEpsilon is the planar distance (degrees) below which a vehicle
	// is considered to have reached its destination.
	ArrivalEpsilon float64 `json:"arrival-epsilon" mapstructure:"arrival-epsilon"`
}

// NewTelemetryOptions creates a new TelemetryOptions with default values.
func NewTelemetryOptions() *TelemetryOptions {
	return &TelemetryOptions{
		PollInterval:   2 * time.Second,
		ArrivalEpsilon: 0.00005,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *TelemetryOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.PollInterval <= 0 || o.PollInterval > maxPollInterval {
		errs = append(errs, fmt.Errorf("telemetry poll interval must be in (0, %s], got %s", maxPollInterval, o.PollInterval))
	}
	if o.ArrivalEpsilon <= 0 {
		errs = append(errs, fmt.Errorf("arrival epsilon must be positive, got %g", o.ArrivalEpsilon))
	}

	return errs
}

// AddFlags adds flags related to telemetry to the specified FlagSet.
func (o *TelemetryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.PollInterval, "telemetry.poll-interval", o.PollInterval, "Interval between telemetry polls per vehicle.")
	fs.Float64Var(&o.ArrivalEpsilon, "telemetry.arrival-epsilon", o.ArrivalEpsilon, "Distance (degrees) below which a destination counts as reached.")
}
