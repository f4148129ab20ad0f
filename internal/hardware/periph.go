package hardware

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/host/v3"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
)

// defaultBadgePollTimeout bounds one MFRC522 presence query.
const defaultBadgePollTimeout = 50 * time.Millisecond

// openPeriph initialises the host and claims the configured pins.
func openPeriph(cfg config.HardwareConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hardware: initialising host: %w", err)
	}

	b, err := claimPins(cfg, gpioreg.ByName)
	if err != nil {
		return nil, err
	}

	if cfg.RFID.Enabled {
		reader, closeReader, err := openMFRC522(cfg.RFID)
		if err != nil {
			b.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
		b.Badge = reader
		b.closers = append(b.closers, closeReader)
	}

	return b, nil
}

// pinLookup resolves a pin by name, returning nil when none exists.
// gpioreg.ByName satisfies it.
type pinLookup func(name string) gpio.PinIO

// claimPins configures the door, LED and optional button pins. On failure
// every pin already claimed is halted before returning.
func claimPins(cfg config.HardwareConfig, lookup pinLookup) (*Board, error) {
	b := &Board{Badge: NoBadge{}}
	if err := b.claim(cfg, lookup); err != nil {
		b.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return b, nil
}

func (b *Board) claim(cfg config.HardwareConfig, lookup pinLookup) error {
	doorPin := lookup(cfg.DoorPin)
	if doorPin == nil {
		return fmt.Errorf("hardware: door pin %s not found", cfg.DoorPin)
	}
	door, err := NewGPIODoor(doorPin, cfg.DoorActiveHigh)
	if err != nil {
		return err
	}
	b.Door = door
	b.closers = append(b.closers, doorPin.Halt)

	ledPin := lookup(cfg.LEDPin)
	if ledPin == nil {
		return fmt.Errorf("hardware: LED pin %s not found", cfg.LEDPin)
	}
	led, err := NewGPIOIndicator(ledPin)
	if err != nil {
		return err
	}
	b.Indicator = led
	b.closers = append(b.closers, ledPin.Halt)

	if cfg.ButtonPin != "" {
		buttonPin := lookup(cfg.ButtonPin)
		if buttonPin == nil {
			return fmt.Errorf("hardware: button pin %s not found", cfg.ButtonPin)
		}
		button, err := NewGPIOButton(buttonPin)
		if err != nil {
			return err
		}
		b.Button = button
		b.closers = append(b.closers, buttonPin.Halt)
	}

	return nil
}

// GPIODoor reads the door contact on an input pin with the internal pull-up.
type GPIODoor struct {
	pin        gpio.PinIn
	activeHigh bool
}

// NewGPIODoor configures pin as a pulled-up input. With activeHigh the door
// reads open when the pin is high (a normally-closed contact to ground).
func NewGPIODoor(pin gpio.PinIn, activeHigh bool) (*GPIODoor, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("hardware: configuring door pin %s: %w", pin, err)
	}
	return &GPIODoor{pin: pin, activeHigh: activeHigh}, nil
}

// DoorOpen implements DoorSensor.
func (d *GPIODoor) DoorOpen() (bool, error) {
	return (d.pin.Read() == gpio.High) == d.activeHigh, nil
}

// GPIOIndicator drives the alert LED.
type GPIOIndicator struct {
	pin gpio.PinOut
}

// NewGPIOIndicator configures pin as an output, initially off.
func NewGPIOIndicator(pin gpio.PinOut) (*GPIOIndicator, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hardware: configuring LED pin %s: %w", pin, err)
	}
	return &GPIOIndicator{pin: pin}, nil
}

// Set implements Indicator.
func (i *GPIOIndicator) Set(on bool) error {
	return i.pin.Out(gpio.Level(on))
}

// GPIOButton waits for rising edges on a pulled-up input (button release).
type GPIOButton struct {
	pin gpio.PinIn
}

// NewGPIOButton configures pin for rising-edge detection.
func NewGPIOButton(pin gpio.PinIn) (*GPIOButton, error) {
	if err := pin.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("hardware: configuring button pin %s: %w", pin, err)
	}
	return &GPIOButton{pin: pin}, nil
}

// WaitForPress implements Button.
func (b *GPIOButton) WaitForPress(timeout time.Duration) bool {
	return b.pin.WaitForEdge(timeout)
}

// noCardMessage is the mfrc522 error text for an IRQ wait that saw no card.
// The driver exposes no sentinel for it.
const noCardMessage = "timeout waiting for IRQ edge"

// uidReader is the part of *mfrc522.Dev the reader uses.
type uidReader interface {
	ReadUID(timeout time.Duration) ([]byte, error)
}

// MFRC522Reader polls an MFRC522 for a card in the field.
type MFRC522Reader struct {
	dev     uidReader
	timeout time.Duration
}

func openMFRC522(cfg config.RFIDConfig) (*MFRC522Reader, func() error, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("hardware: opening SPI port %q: %w", cfg.SPIPort, err)
	}

	resetPin := gpioreg.ByName(cfg.ResetPin)
	irqPin := gpioreg.ByName(cfg.IRQPin)
	if resetPin == nil || irqPin == nil {
		port.Close()
		return nil, nil, fmt.Errorf("hardware: RFID pins %s/%s not found", cfg.ResetPin, cfg.IRQPin)
	}

	dev, err := mfrc522.NewSPI(port, resetPin, irqPin)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("hardware: initialising MFRC522: %w", err)
	}

	timeout := time.Duration(cfg.PollTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultBadgePollTimeout
	}

	closeFn := func() error {
		dev.Halt()
		return port.Close()
	}
	return &MFRC522Reader{dev: dev, timeout: timeout}, closeFn, nil
}

// BadgePresent implements BadgeReader. A poll that times out with no card
// in the field is reported as absent; any other reader failure is returned.
func (r *MFRC522Reader) BadgePresent() (bool, error) {
	uid, err := r.dev.ReadUID(r.timeout)
	switch {
	case err == nil:
		return len(uid) > 0, nil
	case strings.Contains(err.Error(), noCardMessage):
		return false, nil
	default:
		return false, fmt.Errorf("hardware: reading badge: %w", err)
	}
}
