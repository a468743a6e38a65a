package power

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keritech/hifipower/internal/gpio"
)

// newTestController starts a two-channel controller with fake relay
// outputs and its command loop running.
func newTestController(t *testing.T, opts Options) (*Controller, *gpio.FakeOutput, *gpio.FakeOutput) {
	t.Helper()
	out1 := gpio.NewFakeOutput(false)
	out2 := gpio.NewFakeOutput(false)
	ctrl := New([]*Channel{NewChannel(1, out1), NewChannel(2, out2)}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctrl, out1, out2
}

func send(t *testing.T, ctrl *Controller, cmd Command) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := ctrl.Send(ctx, cmd)
	if err != nil {
		t.Fatalf("Send(%+v): %v", cmd, err)
	}
	return res
}

func channelOn(t *testing.T, snap Snapshot, id int) bool {
	t.Helper()
	st, ok := snap.Channel(id)
	if !ok {
		t.Fatalf("channel %d missing from snapshot", id)
	}
	return st.On
}

func TestGlobalOnOff(t *testing.T) {
	ctrl, out1, out2 := newTestController(t, Options{RebootDelay: time.Second})

	res := send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOn})
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failed)
	}
	if !channelOn(t, res.State, 1) || !channelOn(t, res.State, 2) {
		t.Error("expected both channels on")
	}
	if !out1.Level || !out2.Level {
		t.Error("expected both relay lines driven high")
	}

	res = send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOff})
	if channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Error("expected both channels off")
	}
}

func TestPerChannelCommands(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second})

	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOff})
	res := send(t, ctrl, Command{Origin: OriginHTTP, Target: 1, Action: ActionOn})
	if !channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Errorf("expected {1: on, 2: off}, got %+v", res.State.Channels)
	}
}

func TestChannelNotFound(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second})

	send(t, ctrl, Command{Origin: OriginHTTP, Target: 1, Action: ActionOn})
	before := ctrl.State()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ctrl.Send(ctx, Command{Origin: OriginHTTP, Target: 3, Action: ActionOn})
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	after := ctrl.State()
	if channelOn(t, after, 1) != channelOn(t, before, 1) || channelOn(t, after, 2) != channelOn(t, before, 2) {
		t.Error("snapshot must be unchanged after a rejected command")
	}
}

func TestGlobalPartialFailure(t *testing.T) {
	out1 := gpio.NewFakeOutput(false)
	out2 := gpio.NewFakeOutput(false)
	ctrl := New([]*Channel{NewChannel(1, out1), NewChannel(2, out2)}, Options{RebootDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOff})
	out2.WriteError = errors.New("pin unavailable")

	res := send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOn})
	if len(res.Failed) != 1 || res.Failed[0].ID != 2 {
		t.Fatalf("expected channel 2 reported failed, got %v", res.Failed)
	}
	var hwErr *HardwareError
	if !errors.As(res.Failed[0].Err, &hwErr) {
		t.Errorf("expected *HardwareError, got %T", res.Failed[0].Err)
	}

	// Best-effort: channel 1 applied, channel 2 kept its prior state.
	if !channelOn(t, res.State, 1) {
		t.Error("channel 1 should be on despite channel 2 failing")
	}
	if channelOn(t, res.State, 2) {
		t.Error("channel 2 recorded state must be unchanged")
	}

	// The controller keeps serving commands after a hardware error.
	out2.WriteError = nil
	res = send(t, ctrl, Command{Origin: OriginHTTP, Target: 2, Action: ActionOn})
	if len(res.Failed) != 0 || !channelOn(t, res.State, 2) {
		t.Error("channel 2 should recover once the hardware does")
	}
}

func TestToggleTwiceRestoresState(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second})

	send(t, ctrl, Command{Origin: OriginHTTP, Target: 1, Action: ActionOn})
	before := ctrl.State()

	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionToggle})
	res := send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionToggle})

	if channelOn(t, res.State, 1) != channelOn(t, before, 1) || channelOn(t, res.State, 2) != channelOn(t, before, 2) {
		t.Error("double toggle must restore the original state")
	}
}

func TestCommandsAppliedInFIFOOrder(t *testing.T) {
	ctrl, out1, _ := newTestController(t, Options{RebootDelay: time.Second})

	// A button event and an HTTP request arriving back to back: both
	// are applied, and the final snapshot is exactly the second
	// command's net effect.
	ctrl.Enqueue(Command{Origin: OriginToggleButton, Target: TargetGlobal, Action: ActionOn})
	res := send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOff})

	if channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Error("final state must reflect the second command")
	}
	counts := ctrl.CountsSnapshot()
	if counts.On != 1 || counts.Off != 1 {
		t.Errorf("both commands must be applied: %+v", counts)
	}
	// on then off: the first command's effect was fully applied first.
	if len(out1.History) != 2 || !out1.History[0] || out1.History[1] {
		t.Errorf("unexpected drive history: %v", out1.History)
	}
}

func TestCycleTurnsOffThenOn(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: 50 * time.Millisecond})

	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOn})
	res := send(t, ctrl, Command{Origin: OriginRebootButton, Target: TargetGlobal, Action: ActionCycle})

	if channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Fatal("cycle must turn everything off immediately")
	}

	waitFor(t, func() bool {
		snap := ctrl.State()
		return channelOn(t, snap, 1) && channelOn(t, snap, 2)
	}, "channels back on after the reboot delay")
}

func TestCycleSupersededByNewerCommand(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: 100 * time.Millisecond})

	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOn})
	send(t, ctrl, Command{Origin: OriginRebootButton, Target: TargetGlobal, Action: ActionCycle})

	// An explicit off during the delay window supersedes the scheduled
	// turn-on.
	send(t, ctrl, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOff})

	time.Sleep(300 * time.Millisecond)
	snap := ctrl.State()
	if channelOn(t, snap, 1) || channelOn(t, snap, 2) {
		t.Error("scheduled turn-on must not fire after a newer command")
	}
}

func TestAutoSenseDisabled(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second, AutoMode: false})

	res := send(t, ctrl, Command{Origin: OriginAutoSense, Target: TargetGlobal, Action: ActionOn})
	if channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Error("auto-sense must not switch relays when auto mode is disabled")
	}
	if !ctrl.State().AutoSense {
		t.Error("sensed level must still be recorded")
	}
}

func TestAutoSenseMirrorsWhenEnabled(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second, AutoMode: true})

	res := send(t, ctrl, Command{Origin: OriginAutoSense, Target: TargetGlobal, Action: ActionOn})
	if !channelOn(t, res.State, 1) || !channelOn(t, res.State, 2) {
		t.Error("auto-sense on must switch all channels on")
	}

	res = send(t, ctrl, Command{Origin: OriginAutoSense, Target: TargetGlobal, Action: ActionOff})
	if channelOn(t, res.State, 1) || channelOn(t, res.State, 2) {
		t.Error("auto-sense off must switch all channels off")
	}
}

func TestSendTimeout(t *testing.T) {
	// No Run loop consuming: the command is enqueued but never answered.
	out := gpio.NewFakeOutput(false)
	ctrl := New([]*Channel{NewChannel(1, out)}, Options{RebootDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ctrl.Send(ctx, Command{Origin: OriginHTTP, Target: TargetGlobal, Action: ActionOn})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNotifyCalledPerAppliedCommand(t *testing.T) {
	var events []Event
	notify := func(e Event) { events = append(events, e) }

	out1 := gpio.NewFakeOutput(false)
	out2 := gpio.NewFakeOutput(false)
	ctrl := New([]*Channel{NewChannel(1, out1), NewChannel(2, out2)},
		Options{RebootDelay: time.Second, Notify: notify})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	send(t, ctrl, Command{Origin: OriginShutdownButton, Target: TargetGlobal, Action: ActionOff})
	send(t, ctrl, Command{Origin: OriginHTTP, Target: 1, Action: ActionOn})

	// Notify runs on the loop goroutine; both Sends completed, so both
	// events are recorded.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Origin != OriginShutdownButton || events[0].Action != ActionOff {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Target != 1 || events[1].Action != ActionOn {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestManualOverrideReported(t *testing.T) {
	ctrl, _, _ := newTestController(t, Options{RebootDelay: time.Second})

	ctrl.SetManualOverride(true)
	if !ctrl.State().ManualOverride {
		t.Error("manual override must be reflected in the snapshot")
	}
	ctrl.SetManualOverride(false)
	if ctrl.State().ManualOverride {
		t.Error("manual override clear must be reflected in the snapshot")
	}
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
