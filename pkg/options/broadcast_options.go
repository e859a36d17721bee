package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*BroadcastOptions)(nil)

// BroadcastOptions configures the viewer event broadcast channel.
type BroadcastOptions struct {
	// QueueSize is the per-subscriber event buffer. When a subscriber falls
	// behind, the oldest queued events are dropped first.
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`

	// SnapshotInterval is the cadence of the periodic fleet status_update
	// message pushed to every websocket viewer.
	SnapshotInterval time.Duration `json:"snapshot-interval" mapstructure:"snapshot-interval"`
}

// NewBroadcastOptions creates a new BroadcastOptions with default values.
func NewBroadcastOptions() *BroadcastOptions {
	return &BroadcastOptions{
		QueueSize:        64,
		SnapshotInterval: 2 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *BroadcastOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("broadcast queue size must be positive, got %d", o.QueueSize))
	}
	if o.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("snapshot interval must be positive, got %s", o.SnapshotInterval))
	}

	return errs
}

// AddFlags adds flags related to event broadcasting to the specified FlagSet.
func (o *BroadcastOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.QueueSize, "broadcast.queue-size", o.QueueSize, "Per-subscriber event queue size.")
	fs.DurationVar(&o.SnapshotInterval, "broadcast.snapshot-interval", o.SnapshotInterval, "Interval between fleet status snapshots pushed to viewers.")
}
