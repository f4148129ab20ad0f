package netlink

import (
	"context"
	"fmt"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// Link manages one wireless interface.
type Link interface {
	// Connect joins the network ssid using secret.
	Connect(ctx context.Context, ssid, secret string) error

	// Disconnect leaves the network. Safe to call when not connected.
	Disconnect() error

	// StartAccessPoint brings up a local access point. An empty password
	// starts an open network.
	StartAccessPoint(ctx context.Context, ssid, password string) error

	// StopAccessPoint tears the access point down. Safe to call when not started.
	StopAccessPoint() error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// New returns the Link driver selected by cfg.Driver.
func New(cfg config.NetworkConfig) (Link, error) {
	switch cfg.Driver {
	case "nmcli":
		return NewNMCLI(cfg), nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("netlink: unknown driver %q", cfg.Driver)
	}
}

// None is a Link that does nothing.
type None struct{}

func (None) Connect(context.Context, string, string) error          { return nil }
func (None) Disconnect() error                                      { return nil }
func (None) StartAccessPoint(context.Context, string, string) error { return nil }
func (None) StopAccessPoint() error                                 { return nil }
