package netlink

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

const (
	// nmcliBinary is resolved through PATH.
	nmcliBinary = "nmcli"

	// accessPointConnection is the NetworkManager profile name for the AP.
	accessPointConnection = "doorguard-ap"

	// defaultCommandTimeout bounds every nmcli invocation when the
	// configuration leaves it unset.
	defaultCommandTimeout = 30 * time.Second

	// teardownTimeout bounds disconnect and AP shutdown.
	teardownTimeout = 10 * time.Second
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // Arguments are passed directly, no shell
}

// NMCLI drives NetworkManager through its command-line client.
//
// Thread Safety:
//   - Methods are serialised; the driver is safe for concurrent use.
type NMCLI struct {
	iface   string
	timeout time.Duration
	runner  Runner

	mu        sync.Mutex
	connected bool
	apActive  bool

	logger Logger
}

// NewNMCLI creates an nmcli driver for cfg.Interface.
func NewNMCLI(cfg config.NetworkConfig) *NMCLI {
	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &NMCLI{
		iface:   cfg.Interface,
		timeout: timeout,
		runner:  execRunner{},
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for link events.
func (n *NMCLI) SetLogger(logger Logger) {
	n.mu.Lock()
	n.logger = logger
	n.mu.Unlock()
}

// SetRunner replaces the command runner.
func (n *NMCLI) SetRunner(r Runner) {
	n.mu.Lock()
	n.runner = r
	n.mu.Unlock()
}

// Connect implements Link.
func (n *NMCLI) Connect(ctx context.Context, ssid, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkInterface(ctx); err != nil {
		return err
	}

	args := []string{
		"--wait", strconv.Itoa(int(n.timeout.Seconds())),
		"device", "wifi", "connect", ssid,
		"password", secret,
		"ifname", n.iface,
	}
	if _, err := n.run(ctx, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, ssid, err)
	}

	n.connected = true
	n.logger.Info("network connected", "interface", n.iface, "ssid", ssid)
	return nil
}

// Disconnect implements Link.
func (n *NMCLI) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.connected {
		return nil
	}
	n.connected = false

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if _, err := n.run(ctx, "device", "disconnect", n.iface); err != nil {
		return fmt.Errorf("netlink: disconnecting %s: %w", n.iface, err)
	}
	n.logger.Info("network disconnected", "interface", n.iface)
	return nil
}

// StartAccessPoint implements Link.
func (n *NMCLI) StartAccessPoint(ctx context.Context, ssid, password string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkInterface(ctx); err != nil {
		return err
	}

	// A profile left behind by a crash would make "add" fail.
	_, _ = n.run(ctx, "connection", "delete", accessPointConnection) //nolint:errcheck // Absent profile is the normal case

	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", n.iface,
		"con-name", accessPointConnection,
		"autoconnect", "no",
		"ssid", ssid,
		"802-11-wireless.mode", "ap",
		"ipv4.method", "shared",
	}
	if password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", password)
	}
	if _, err := n.run(ctx, args...); err != nil {
		return fmt.Errorf("%w: creating profile: %w", ErrAccessPointFailed, err)
	}

	if _, err := n.run(ctx, "connection", "up", accessPointConnection); err != nil {
		return fmt.Errorf("%w: activating: %w", ErrAccessPointFailed, err)
	}

	n.apActive = true
	n.logger.Info("access point started", "interface", n.iface, "ssid", ssid, "open", password == "")
	return nil
}

// StopAccessPoint implements Link.
func (n *NMCLI) StopAccessPoint() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.apActive {
		return nil
	}
	n.apActive = false

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if _, err := n.run(ctx, "connection", "down", accessPointConnection); err != nil {
		n.logger.Warn("access point deactivate failed", "error", err)
	}
	if _, err := n.run(ctx, "connection", "delete", accessPointConnection); err != nil {
		return fmt.Errorf("netlink: removing access point profile: %w", err)
	}
	n.logger.Info("access point stopped", "interface", n.iface)
	return nil
}

// checkInterface returns ErrNoInterface unless nmcli lists n.iface.
// A failure to run nmcli at all is a tooling fault, not a missing interface.
func (n *NMCLI) checkInterface(ctx context.Context) error {
	out, err := n.run(ctx, "-t", "-f", "DEVICE", "device")
	if err != nil {
		return fmt.Errorf("netlink: listing devices: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == n.iface {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoInterface, n.iface)
}

// run executes nmcli with a per-command timeout. Output is folded into the
// error so failures carry NetworkManager's diagnostic.
func (n *NMCLI) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.runner.Run(ctx, nmcliBinary, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}
