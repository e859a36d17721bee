// Copyright 2026 The Skycourier Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/skycourier-io/skycourier/internal/dispatch"
	"github.com/skycourier-io/skycourier/pkg/log"
	genericoptions "github.com/skycourier-io/skycourier/pkg/options"
)

// DispatchOptions aggregates every option group of the dispatch hub.
type DispatchOptions struct {
	HTTPOptions      *genericoptions.HTTPOptions      `json:"http" mapstructure:"http"`
	MQTTOptions      *genericoptions.MQTTOptions      `json:"mqtt" mapstructure:"mqtt"`
	FleetOptions     *genericoptions.FleetOptions     `json:"fleet" mapstructure:"fleet"`
	TelemetryOptions *genericoptions.TelemetryOptions `json:"telemetry" mapstructure:"telemetry"`
	BroadcastOptions *genericoptions.BroadcastOptions `json:"broadcast" mapstructure:"broadcast"`
	ControlOptions   *genericoptions.ControlOptions   `json:"control" mapstructure:"control"`
	Log              *log.Options                     `json:"log" mapstructure:"log"`
}

// NewDispatchOptions creates a DispatchOptions with defaults.
func NewDispatchOptions() *DispatchOptions {
	return &DispatchOptions{
		HTTPOptions:      genericoptions.NewHTTPOptions(),
		MQTTOptions:      genericoptions.NewMQTTOptions(),
		FleetOptions:     genericoptions.NewFleetOptions(),
		TelemetryOptions: genericoptions.NewTelemetryOptions(),
		BroadcastOptions: genericoptions.NewBroadcastOptions(),
		ControlOptions:   genericoptions.NewControlOptions(),
		Log:              log.NewOptions(),
	}
}

// AddFlags registers every option group's flags on the command flag set.
func (o *DispatchOptions) AddFlags(fs *pflag.FlagSet) {
	o.HTTPOptions.AddFlags(fs)
	o.MQTTOptions.AddFlags(fs)
	o.FleetOptions.AddFlags(fs)
	o.TelemetryOptions.AddFlags(fs)
	o.BroadcastOptions.AddFlags(fs)
	o.ControlOptions.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Complete fills in derived defaults after flags and config are parsed.
func (o *DispatchOptions) Complete() error {
	return nil
}

// Validate checks every option group.
func (o *DispatchOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.MQTTOptions.Validate()...)
	errs = append(errs, o.FleetOptions.Validate()...)
	errs = append(errs, o.TelemetryOptions.Validate()...)
	errs = append(errs, o.BroadcastOptions.Validate()...)
	errs = append(errs, o.ControlOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}

// Config builds the runnable server configuration.
func (o *DispatchOptions) Config() (*dispatch.Config, error) {
	return &dispatch.Config{
		HTTPOptions:      o.HTTPOptions,
		MQTTOptions:      o.MQTTOptions,
		FleetOptions:     o.FleetOptions,
		TelemetryOptions: o.TelemetryOptions,
		BroadcastOptions: o.BroadcastOptions,
		ControlOptions:   o.ControlOptions,
	}, nil
}
