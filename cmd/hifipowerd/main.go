// Command hifipowerd controls mains power to audio equipment through
// GPIO relay outputs, reconciling physical buttons, sense inputs, and
// an HTTP API into a single command queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keritech/hifipower/internal/config"
	"github.com/keritech/hifipower/internal/gpio"
	"github.com/keritech/hifipower/internal/input"
	"github.com/keritech/hifipower/internal/mqtt"
	"github.com/keritech/hifipower/internal/power"
	"github.com/keritech/hifipower/internal/status"
	"github.com/keritech/hifipower/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Configuration file path")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides config)")
	broker := flag.String("broker", "", "MQTT broker URL (overrides config)")
	printState := flag.Bool("print-state", false, "Print current relay levels and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTP = *httpAddr
	}
	if *broker != "" {
		cfg.Broker = *broker
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, printState bool) error {
	chip, err := gpio.OpenChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	if printState {
		return printRelayState(chip, cfg)
	}

	// Relay outputs start off: the safe state after a daemon restart.
	relay1, err := chip.RequestOutput(cfg.Pins.Relay1, false)
	if err != nil {
		return fmt.Errorf("relay 1: %w", err)
	}
	defer relay1.Close()
	relay2, err := chip.RequestOutput(cfg.Pins.Relay2, false)
	if err != nil {
		return fmt.Errorf("relay 2: %w", err)
	}
	defer relay2.Close()

	var led gpio.Output
	if cfg.Pins.ReadyLED >= 0 {
		led, err = chip.RequestOutput(cfg.Pins.ReadyLED, false)
		if err != nil {
			return fmt.Errorf("ready led: %w", err)
		}
		defer led.Close()
	}

	// MQTT is optional; a broker that is down at startup only disables
	// the feed, it never blocks power control.
	var publisher *mqtt.RealPublisher
	if cfg.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(cfg.Broker)
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	notify := func(ev power.Event) {
		if publisher == nil {
			return
		}
		if err := publisher.Publish(ev); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	ctrl := power.New(
		[]*power.Channel{power.NewChannel(1, relay1), power.NewChannel(2, relay2)},
		power.Options{
			RebootDelay: cfg.RebootDelay.Std(),
			AutoMode:    cfg.AutoMode,
			Notify:      notify,
		},
	)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:           cfg.Poll.Std().Milliseconds(),
		ButtonDebounceMs: cfg.ButtonDebounce.Std().Milliseconds(),
		SenseDebounceMs:  cfg.SenseDebounce.Std().Milliseconds(),
		RebootDelayMs:    cfg.RebootDelay.Std().Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Std().Milliseconds(),
		AutoMode:         cfg.AutoMode,
		Broker:           cfg.Broker,
		HTTPAddr:         cfg.HTTP,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	if publisher != nil {
		tracker.SetMQTTConnected(publisher.IsConnected())
	}

	poller := input.New(cfg.Poll.Std(), nil)
	if err := bindInputs(chip, cfg, poller, ctrl); err != nil {
		return err
	}

	srv := web.New(cfg.HTTP, ctrl, tracker, cfg.CommandTimeout.Std())

	// System events carry the same status document the HTTP /json
	// endpoint serves, so broker-side consumers see one format.
	systemEvent := func(name, reason string, retained bool) mqtt.SystemEvent {
		snap := tracker.Snapshot()
		ev := mqtt.SystemEvent{Timestamp: snap.Now, Event: name, Reason: reason, Retained: retained}
		raw, err := mqtt.FormatSystemStatusPayload(ev, web.StatusBody(ctrl.State(), ctrl.CountsSnapshot(), snap))
		if err == nil {
			ev.RawPayload = raw
		}
		return ev
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shutdownReason string
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case s := <-sigCh:
			shutdownReason = signalName(s)
			log.Printf("received %v, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })

	g.Go(func() error {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		return heartbeatLoop(ctx, cfg.Heartbeat.Std(), publisher, tracker, func() mqtt.SystemEvent {
			return systemEvent("HEARTBEAT", "", false)
		})
	})

	if led != nil {
		if err := led.Write(true); err != nil {
			log.Printf("ready led: %v", err)
		}
	}

	publishSystem(publisher, systemEvent("STARTUP", "", true))

	log.Printf("started: http=%s poll=%v reboot_delay=%v auto_mode=%v broker=%s",
		cfg.HTTP, cfg.Poll.Std(), cfg.RebootDelay.Std(), cfg.AutoMode, brokerOrOff(cfg.Broker))

	runErr := g.Wait()

	publishSystem(publisher, systemEvent("SHUTDOWN", shutdownReason, true))

	// The controller loop has stopped; we are the only writer now.
	if led != nil {
		blink(led, 5, 500*time.Millisecond)
	}
	if cfg.RelaysOffOnExit() {
		if err := relay1.Write(false); err != nil {
			log.Printf("relay 1 off: %v", err)
		}
		if err := relay2.Write(false); err != nil {
			log.Printf("relay 2 off: %v", err)
		}
	}

	return runErr
}

// bindInputs requests the configured input lines and wires their
// debounced edges to controller commands. Every source feeds the same
// queue, so button and HTTP commands are serialized identically.
func bindInputs(chip *gpio.Chip, cfg config.Config, poller *input.Poller, ctrl *power.Controller) error {
	buttonPull := cfg.Polarity.ButtonsActiveLow

	button := func(name string, pin int, onPress func()) error {
		if pin < 0 {
			return nil
		}
		line, err := chip.RequestInput(pin, buttonPull)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		poller.Add(&input.Source{
			Name:      name,
			Line:      line,
			Debounce:  cfg.ButtonDebounce.Std(),
			ActiveLow: cfg.Polarity.ButtonsActiveLow,
			OnEdge: func(asserted bool, _ time.Time) {
				if asserted {
					onPress()
				}
			},
		})
		return nil
	}

	if err := button("shutdown-button", cfg.Pins.ShutdownButton, func() {
		ctrl.Enqueue(power.Command{Origin: power.OriginShutdownButton, Target: power.TargetGlobal, Action: power.ActionOff})
	}); err != nil {
		return err
	}
	if err := button("reboot-button", cfg.Pins.RebootButton, func() {
		ctrl.Enqueue(power.Command{Origin: power.OriginRebootButton, Target: power.TargetGlobal, Action: power.ActionCycle})
	}); err != nil {
		return err
	}
	if err := button("toggle-button", cfg.Pins.ToggleButton, func() {
		ctrl.Enqueue(power.Command{Origin: power.OriginToggleButton, Target: power.TargetGlobal, Action: power.ActionToggle})
	}); err != nil {
		return err
	}

	if cfg.Pins.AutoSense >= 0 {
		line, err := chip.RequestInput(cfg.Pins.AutoSense, false)
		if err != nil {
			return fmt.Errorf("auto-sense: %w", err)
		}
		poller.Add(&input.Source{
			Name:      "auto-sense",
			Line:      line,
			Debounce:  cfg.SenseDebounce.Std(),
			ActiveLow: cfg.Polarity.SenseActiveLow,
			OnEdge: func(asserted bool, _ time.Time) {
				action := power.ActionOff
				if asserted {
					action = power.ActionOn
				}
				ctrl.Enqueue(power.Command{Origin: power.OriginAutoSense, Target: power.TargetGlobal, Action: action})
			},
		})
	}

	if cfg.Pins.ManualSense >= 0 {
		line, err := chip.RequestInput(cfg.Pins.ManualSense, false)
		if err != nil {
			return fmt.Errorf("manual-sense: %w", err)
		}
		poller.Add(&input.Source{
			Name:      "manual-sense",
			Line:      line,
			Debounce:  cfg.SenseDebounce.Std(),
			ActiveLow: cfg.Polarity.SenseActiveLow,
			OnEdge: func(asserted bool, _ time.Time) {
				ctrl.SetManualOverride(asserted)
			},
		})
	}

	return nil
}

// heartbeatLoop periodically publishes a HEARTBEAT system event and
// refreshes broker connectivity in the tracker.
func heartbeatLoop(ctx context.Context, interval time.Duration, publisher *mqtt.RealPublisher, tracker *status.Tracker, event func() mqtt.SystemEvent) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if publisher != nil {
				tracker.SetMQTTConnected(publisher.IsConnected())
			}
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v", snap.Uptime().Truncate(time.Second))
			publishSystem(publisher, event())
		}
	}
}

func publishSystem(publisher *mqtt.RealPublisher, ev mqtt.SystemEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Printf("publish %s event: %v", ev.Event, err)
	}
}

// printRelayState reads the relay lines once and exits. The lines are
// requested as inputs so the daemon does not disturb their level.
func printRelayState(chip *gpio.Chip, cfg config.Config) error {
	for i, pin := range []int{cfg.Pins.Relay1, cfg.Pins.Relay2} {
		line, err := chip.RequestInput(pin, false)
		if err != nil {
			return fmt.Errorf("relay %d: %w", i+1, err)
		}
		level, err := line.Read()
		line.Close()
		if err != nil {
			return fmt.Errorf("relay %d: %w", i+1, err)
		}
		fmt.Printf("channel %d: %s\n", i+1, stateString(level))
	}
	return nil
}

// blink toggles the LED the given number of times over the total
// duration and leaves it off.
func blink(led gpio.Output, times int, total time.Duration) {
	if times <= 0 {
		return
	}
	step := total / time.Duration(times*2)
	for i := 0; i < times; i++ {
		led.Write(true)
		time.Sleep(step)
		led.Write(false)
		time.Sleep(step)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func brokerOrOff(broker string) string {
	if broker == "" {
		return "off"
	}
	return broker
}
