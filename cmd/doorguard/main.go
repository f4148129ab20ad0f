// DoorGuard Core - door alarm node
//
// This is the main entry point for the DoorGuard node. One process guards
// one door: it loads the provisioned configuration record (or serves the
// provisioning form when there is none), joins the network, opens the broker
// session and runs the alarm loop until the session ends.
//
// The process is meant to run under a supervisor that restarts it. Exit
// status 0 covers a clean session end and every "restart to continue"
// condition; anything else is a fatal startup or session failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/doorguard-core/internal/clock"
	"github.com/nerrad567/doorguard-core/internal/controller"
	"github.com/nerrad567/doorguard-core/internal/hardware"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorguard-core/internal/netlink"
	"github.com/nerrad567/doorguard-core/internal/provisioning"
	"github.com/nerrad567/doorguard-core/internal/store"
	"github.com/nerrad567/doorguard-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)
	cancel()

	code := exitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

// exitCode maps the result of run to the process exit status.
//
// A missing interface exits cleanly only on the normal boot path; once
// provisioning has been engaged, a failure to start it is fatal.
func exitCode(err error) int {
	switch {
	case errors.Is(err, provisioning.ErrStartFailed):
		return 1
	case err == nil,
		errors.Is(err, controller.ErrRestartRequired),
		errors.Is(err, netlink.ErrNoInterface):
		return 0
	default:
		return 1
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting DoorGuard Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("configuration loaded", "path", configPath)

	recordStore := store.New(store.NewDirVolume(cfg.Storage.Path), cfg.Storage.RecordFile)
	recordStore.SetLogger(log.With("component", "store"))

	link, err := netlink.New(cfg.Network)
	if err != nil {
		return fmt.Errorf("creating network link: %w", err)
	}
	if nm, ok := link.(*netlink.NMCLI); ok {
		nm.SetLogger(log.With("component", "netlink"))
	}

	board, err := hardware.Open(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer func() {
		if closeErr := board.Close(); closeErr != nil {
			log.Error("error releasing hardware", "error", closeErr)
		}
	}()
	log.Info("hardware ready", "driver", cfg.Hardware.Driver)

	provisioner, err := provisioning.New(provisioning.Deps{
		Config: cfg.Provisioning,
		Store:  recordStore,
		Link:   link,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating provisioning service: %w", err)
	}

	clk := clock.New(cfg.Time)
	recorder, closeRecorder := openRecorder(ctx, cfg, clk, log)
	defer closeRecorder()

	deps := controller.Deps{
		Config:      cfg,
		Store:       recordStore,
		Provisioner: provisioner,
		Link:        link,
		Dialer:      transport.NewDialer(cfg.MQTT),
		Connect:     connectBroker(cfg.MQTT, log),
		Board:       board,
		Clock:       clk,
		Recorder:    recorder,
		Logger:      log,
	}

	ctrl, err := controller.New(deps)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	err = ctrl.Run(ctx)
	switch {
	case err == nil:
		log.Info("DoorGuard Core stopped")
	case errors.Is(err, controller.ErrRestartRequired):
		log.Info("restart required to load configuration")
	default:
		log.Error("DoorGuard Core failed", "error", err)
	}
	return err
}

// connectBroker adapts mqtt.Connect to the controller's ConnectFunc.
func connectBroker(cfg config.MQTTConfig, log *logging.Logger) controller.ConnectFunc {
	return func(conn net.Conn) (controller.Session, error) {
		client, err := mqtt.Connect(conn, cfg)
		if err != nil {
			return nil, err
		}
		client.SetLogger(log.With("component", "mqtt"))
		return client, nil
	}
}

// getConfigPath returns the configuration file path.
// Uses DOORGUARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DOORGUARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
