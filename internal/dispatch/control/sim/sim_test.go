package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/pkg/geo"
)

var home = geo.Position{Lat: 16.4663, Lon: 80.5036}

func newTestFleet(t *testing.T) *Fleet {
	t.Helper()
	f := New(0.001, time.Second)
	f.Seed("drone-1", home)
	if err := f.Connect(context.Background(), "drone-1", "sim://drone-1"); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFliesToTargetAndDisarms(t *testing.T) {
	ctx := context.Background()
	f := newTestFleet(t)
	dst := geo.Position{Lat: home.Lat + 0.0025, Lon: home.Lon}

	if err := f.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}

	tel, err := f.ReadTelemetry(ctx, "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if !tel.Armed {
		t.Error("vehicle not armed after goto")
	}

	// 0.0025 degrees at 0.001 per step is three steps.
	for i := 0; i < 3; i++ {
		f.Step()
	}

	tel, err = f.ReadTelemetry(ctx, "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if tel.Position != dst {
		t.Errorf("position = %+v, want %+v", tel.Position, dst)
	}
	if tel.Armed {
		t.Error("vehicle still armed after arrival")
	}
	if tel.Battery >= 100 {
		t.Errorf("battery did not drain: %v", tel.Battery)
	}
}

func TestReturnToLaunchTargetsHome(t *testing.T) {
	ctx := context.Background()
	f := newTestFleet(t)
	dst := geo.Position{Lat: home.Lat + 0.01, Lon: home.Lon}

	if err := f.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}
	f.Step()
	if err := f.CommandReturnToLaunch(ctx, "drone-1"); err != nil {
		t.Fatal(err)
	}
	f.Step()

	tel, err := f.ReadTelemetry(ctx, "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if tel.Position != home {
		t.Errorf("position = %+v, want home %+v", tel.Position, home)
	}
}

func TestLinkDownFailsEveryCall(t *testing.T) {
	ctx := context.Background()
	f := newTestFleet(t)
	f.SetLinkDown("drone-1", true)

	if _, err := f.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("read: err = %v, want ErrLinkError", err)
	}
	if err := f.CommandGoto(ctx, "drone-1", home); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("goto: err = %v, want ErrLinkError", err)
	}
	if err := f.Connect(ctx, "drone-1", "sim://drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("connect: err = %v, want ErrLinkError", err)
	}

	f.SetLinkDown("drone-1", false)
	if _, err := f.ReadTelemetry(ctx, "drone-1"); err != nil {
		t.Errorf("read after recovery: %v", err)
	}
}

func TestRejectCommands(t *testing.T) {
	ctx := context.Background()
	f := newTestFleet(t)
	f.SetRejectCommands("drone-1", true)

	if err := f.CommandGoto(ctx, "drone-1", home); !errors.Is(err, core.ErrCommandRejected) {
		t.Errorf("goto: err = %v, want ErrCommandRejected", err)
	}
	// Telemetry still flows: the link is up, the command was refused.
	if _, err := f.ReadTelemetry(ctx, "drone-1"); err != nil {
		t.Errorf("read: %v", err)
	}
}

func TestDisconnectedVehicleKeepsFlying(t *testing.T) {
	ctx := context.Background()
	f := newTestFleet(t)
	dst := geo.Position{Lat: home.Lat + 0.01, Lon: home.Lon}

	if err := f.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}
	if err := f.Disconnect(ctx, "drone-1"); err != nil {
		t.Fatal(err)
	}
	f.Step()

	if _, err := f.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("read while disconnected: err = %v, want ErrLinkError", err)
	}

	pos, err := f.Position("drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if pos == home {
		t.Error("vehicle did not move while disconnected")
	}
}

func TestUnknownVehicle(t *testing.T) {
	ctx := context.Background()
	f := New(0.001, time.Second)
	if err := f.Connect(ctx, "ghost", "sim://ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
