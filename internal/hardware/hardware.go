package hardware

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// DoorSensor reports the door contact state.
type DoorSensor interface {
	// DoorOpen samples the contact. An error is a transient read glitch.
	DoorOpen() (bool, error)
}

// Indicator is the visible alert output.
type Indicator interface {
	Set(on bool) error
}

// BadgeReader answers whether a trusted badge is present right now.
// It never blocks for longer than its configured poll timeout.
type BadgeReader interface {
	BadgePresent() (bool, error)
}

// Button is the maintenance input.
type Button interface {
	// WaitForPress blocks until a press edge or timeout, reporting which.
	WaitForPress(timeout time.Duration) bool
}

// Board groups the adapters for one node.
type Board struct {
	Door      DoorSensor
	Indicator Indicator
	Badge     BadgeReader

	// Button is nil when no maintenance button is fitted.
	Button Button

	closers []func() error
}

// Close releases the underlying hardware, turning the indicator off first.
func (b *Board) Close() error {
	var errs []error
	if b.Indicator != nil {
		if err := b.Indicator.Set(false); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the Board for the configured driver.
func Open(cfg config.HardwareConfig) (*Board, error) {
	switch cfg.Driver {
	case "periph":
		return openPeriph(cfg)
	case "sim":
		return openSim(cfg)
	default:
		return nil, fmt.Errorf("hardware: unknown driver %q", cfg.Driver)
	}
}

// NoBadge is a BadgeReader for nodes without a reader fitted.
type NoBadge struct{}

// BadgePresent always reports no badge.
func (NoBadge) BadgePresent() (bool, error) { return false, nil }
