package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// Sim file names.
const (
	simDoorFile   = "door"
	simBadgeFile  = "badge"
	simButtonFile = "button"
	simLEDFile    = "led"

	// simButtonPoll is how often WaitForPress checks for the button file.
	simButtonPoll = 20 * time.Millisecond
)

// Sim is a file-backed implementation of every adapter interface.
type Sim struct {
	dir string
}

// NewSim creates a Sim rooted at dir, creating the directory if needed.
func NewSim(dir string) (*Sim, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("hardware: creating sim directory: %w", err)
	}
	return &Sim{dir: dir}, nil
}

func openSim(cfg config.HardwareConfig) (*Board, error) {
	s, err := NewSim(cfg.SimDir)
	if err != nil {
		return nil, err
	}
	if err := s.Set(false); err != nil {
		return nil, err
	}

	b := &Board{Door: s, Indicator: s, Badge: NoBadge{}}
	if cfg.RFID.Enabled {
		b.Badge = s
	}
	if cfg.ButtonPin != "" {
		b.Button = s
	}
	return b, nil
}

// DoorOpen implements DoorSensor.
func (s *Sim) DoorOpen() (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, simDoorFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hardware: reading sim door: %w", err)
	}

	switch v := strings.TrimSpace(string(data)); v {
	case "open":
		return true, nil
	case "closed", "":
		return false, nil
	default:
		return false, fmt.Errorf("hardware: sim door has unknown state %q", v)
	}
}

// Set implements Indicator.
func (s *Sim) Set(on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	if err := os.WriteFile(filepath.Join(s.dir, simLEDFile), []byte(state+"\n"), 0600); err != nil {
		return fmt.Errorf("hardware: writing sim LED: %w", err)
	}
	return nil
}

// BadgePresent implements BadgeReader.
func (s *Sim) BadgePresent() (bool, error) {
	return s.consume(simBadgeFile)
}

// WaitForPress implements Button.
func (s *Sim) WaitForPress(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if pressed, _ := s.consume(simButtonFile); pressed {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(min(simButtonPoll, time.Until(deadline)))
	}
}

// LED reports the last state written to the indicator file.
func (s *Sim) LED() (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, simLEDFile))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(data)) == "on", nil
}

// consume reports whether name exists, removing it if so.
func (s *Sim) consume(name string) (bool, error) {
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hardware: consuming sim %s: %w", name, err)
	}
	return true, nil
}
