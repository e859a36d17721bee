package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*FleetOptions)(nil)

// FleetOptions configures fleet provisioning.
type FleetOptions struct {
	// Manifest is the path to the fleet manifest (vehicles, delivery sites).
	Manifest string `json:"manifest" mapstructure:"manifest"`

	// Watch enables hot-reloading of the manifest so vehicles can be added
	// while the hub is running.
	Watch bool `json:"watch" mapstructure:"watch"`
}

// NewFleetOptions creates a new FleetOptions with default values.
func NewFleetOptions() *FleetOptions {
	return &FleetOptions{
		Manifest: "configs/fleet.yaml",
		Watch:    true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *FleetOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Manifest == "" {
		errs = append(errs, errors.New("fleet manifest path is required"))
	}

	return errs
}

// AddFlags adds flags related to fleet provisioning to the specified FlagSet.
func (o *FleetOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Manifest, "fleet.manifest", o.Manifest, "Path to the fleet manifest file.")
	fs.BoolVar(&o.Watch, "fleet.watch", o.Watch, "Reload the fleet manifest when it changes on disk.")
}
