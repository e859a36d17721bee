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

package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skycourier-io/skycourier/cmd/skyc-dispatch/app/options"
	"github.com/skycourier-io/skycourier/pkg/log"
)

const commandDesc = `The Skycourier dispatch hub coordinates a fleet of delivery
drones: it accepts orders, launches them on available drones, tracks every
flight through its telemetry loop, and streams fleet state to dashboards over
websocket.`

var cfgFile string

// NewDispatchCommand builds the skyc-dispatch root command.
func NewDispatchCommand() *cobra.Command {
	opts := options.NewDispatchOptions()

	cmd := &cobra.Command{
		Use:          "skyc-dispatch",
		Short:        "Launch the drone delivery dispatch hub",
		Long:         commandDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the skyc-dispatch configuration file.")
	opts.AddFlags(cmd.Flags())
	cobra.CheckErr(viper.BindPFlags(cmd.Flags()))

	return cmd
}

// loadConfig layers the optional config file under the flag values.
func loadConfig(opts *options.DispatchOptions) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("skyc-dispatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/skycourier")
	}
	viper.SetEnvPrefix("SKYC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config is fine; an explicit one is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cfgFile != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return viper.Unmarshal(opts)
}

func run(opts *options.DispatchOptions) error {
	log.Init(opts.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	server, err := cfg.NewDispatchServer()
	if err != nil {
		return fmt.Errorf("failed to create dispatch server: %w", err)
	}

	return server.Run(ctx)
}
