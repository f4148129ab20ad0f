package netlink

import "errors"

// Domain-specific errors for link management.
var (
	// ErrNoInterface is returned when the configured interface does not exist.
	// The process exits cleanly: there is nothing to retry on this hardware.
	ErrNoInterface = errors.New("netlink: network interface not found")

	// ErrConnectFailed is returned when joining the network fails.
	ErrConnectFailed = errors.New("netlink: connect failed")

	// ErrAccessPointFailed is returned when the access point cannot be started.
	ErrAccessPointFailed = errors.New("netlink: access point failed")
)
