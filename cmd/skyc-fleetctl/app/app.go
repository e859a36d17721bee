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
	"fmt"
	"net/http"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
)

var serverURL string

// NewFleetctlCommand builds the skyc-fleetctl root command.
func NewFleetctlCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "skyc-fleetctl",
		Short:        "Operate a running Skycourier dispatch hub",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Base URL of the dispatch hub.")

	root.AddCommand(
		newDronesCommand(),
		newOrdersCommand(),
		newLaunchCommand(),
		newRTLCommand(),
		newConnectCommand(),
		newDisconnectCommand(),
		newSitesCommand(),
	)
	return root
}

func newDronesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drones",
		Short: "List the fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			var drones []model.VehicleStatus
			if err := newClient(serverURL).do(http.MethodGet, "/api/drones", nil, &drones); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("ID", "MODEL", "LINK", "MISSION", "BATTERY", "POSITION", "ORDER")
			for _, d := range drones {
				table.AddRow(d.ID, d.Model, d.LinkState, d.MissionState,
					fmt.Sprintf("%.0f%%", d.Battery),
					fmt.Sprintf("%.4f,%.4f", d.Position.Lat, d.Position.Lon),
					d.OrderID)
			}
			cmd.Println(table)
			return nil
		},
	}
}

func newOrdersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var orders []model.Order
			if err := newClient(serverURL).do(http.MethodGet, "/api/orders", nil, &orders); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("ID", "STATUS", "USER", "SITE", "DRONE", "TOTAL", "CREATED")
			for _, o := range orders {
				table.AddRow(o.ID, o.Status, o.User, o.DeliveryLocationID, o.VehicleID,
					fmt.Sprintf("%.2f", o.Total), o.CreatedAt.Format(time.RFC3339))
			}
			cmd.Println(table)
			return nil
		},
	}
}

func newLaunchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "launch ORDER_ID",
		Short: "Dispatch a ready order to an available drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o model.Order
			if err := newClient(serverURL).do(http.MethodPost, "/api/orders/"+args[0]+"/launch", nil, &o); err != nil {
				return err
			}
			cmd.Printf("order %s is %s on drone %s\n", o.ID, o.Status, o.VehicleID)
			return nil
		},
	}
}

func newRTLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rtl DRONE_ID",
		Short: "Recall a drone to its home position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d model.VehicleStatus
			if err := newClient(serverURL).do(http.MethodPost, "/api/drones/"+args[0]+"/rtl", nil, &d); err != nil {
				return err
			}
			cmd.Printf("drone %s is %s\n", d.ID, d.MissionState)
			return nil
		},
	}
}

func newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect DRONE_ID",
		Short: "Establish the control link to a drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d model.VehicleStatus
			if err := newClient(serverURL).do(http.MethodPost, "/api/drones/"+args[0]+"/connect", nil, &d); err != nil {
				return err
			}
			cmd.Printf("drone %s is %s\n", d.ID, d.LinkState)
			return nil
		},
	}
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect DRONE_ID",
		Short: "Tear down the control link to a drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d model.VehicleStatus
			if err := newClient(serverURL).do(http.MethodPost, "/api/drones/"+args[0]+"/disconnect", nil, &d); err != nil {
				return err
			}
			cmd.Printf("drone %s is %s\n", d.ID, d.LinkState)
			return nil
		},
	}
}

func newSitesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List delivery sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sites []fleet.Site
			if err := newClient(serverURL).do(http.MethodGet, "/api/delivery-sites", nil, &sites); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("ID", "NAME", "POSITION")
			for _, s := range sites {
				table.AddRow(s.ID, s.Name, fmt.Sprintf("%.4f,%.4f", s.Position.Lat, s.Position.Lon))
			}
			cmd.Println(table)
			return nil
		},
	}
}
