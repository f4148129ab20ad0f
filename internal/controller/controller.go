package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/nerrad567/doorguard-core/internal/clock"
	"github.com/nerrad567/doorguard-core/internal/hardware"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorguard-core/internal/maintenance"
	"github.com/nerrad567/doorguard-core/internal/netlink"
	"github.com/nerrad567/doorguard-core/internal/store"
	"github.com/nerrad567/doorguard-core/internal/transport"
)

// ConfigStore is the persistent configuration record.
type ConfigStore interface {
	Load() (store.Record, error)
	Erase() error
}

// Provisioner runs the first-boot web form until a record is written.
type Provisioner interface {
	Run(ctx context.Context) error
}

// Dialer establishes the secure transport to the broker.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// Session is the broker session, owned by the controller for its lifetime.
type Session interface {
	Publisher
	Yield(ctx context.Context) error
	Disconnect()
}

// ConnectFunc performs the broker handshake over an established transport.
type ConnectFunc func(conn net.Conn) (Session, error)

// ClockSyncer synchronises the diagnostic clock.
type ClockSyncer interface {
	Sync(ctx context.Context) (time.Duration, error)
}

// Deps holds the collaborators of the controller. Clock and Recorder are
// optional; everything else is required.
type Deps struct {
	Config      *config.Config
	Store       ConfigStore
	Provisioner Provisioner
	Link        netlink.Link
	Dialer      Dialer
	Connect     ConnectFunc
	Board       *hardware.Board
	Clock       ClockSyncer
	Recorder    Recorder
	Logger      *logging.Logger
}

// Controller sequences startup and runs the alarm loop.
type Controller struct {
	cfg         *config.Config
	store       ConfigStore
	provisioner Provisioner
	link        netlink.Link
	dialer      Dialer
	connect     ConnectFunc
	board       *hardware.Board
	clock       ClockSyncer
	recorder    Recorder
	logger      *logging.Logger

	alarm atomic.Pointer[Alarm]
}

// New creates a Controller.
func New(deps Deps) (*Controller, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("config is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Provisioner == nil:
		return nil, fmt.Errorf("provisioner is required")
	case deps.Link == nil:
		return nil, fmt.Errorf("network link is required")
	case deps.Dialer == nil:
		return nil, fmt.Errorf("dialer is required")
	case deps.Connect == nil:
		return nil, fmt.Errorf("connect func is required")
	case deps.Board == nil || deps.Board.Door == nil || deps.Board.Indicator == nil:
		return nil, fmt.Errorf("door sensor and indicator are required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	return &Controller{
		cfg:         deps.Config,
		store:       deps.Store,
		provisioner: deps.Provisioner,
		link:        deps.Link,
		dialer:      deps.Dialer,
		connect:     deps.Connect,
		board:       deps.Board,
		clock:       deps.Clock,
		recorder:    deps.Recorder,
		logger:      deps.Logger.With("component", "controller"),
	}, nil
}

// Alarm returns the alarm state machine once the loop has started, or nil.
func (c *Controller) Alarm() *Alarm {
	return c.alarm.Load()
}

// Run executes startup sequencing and the alarm loop.
//
// Startup order:
//  1. Load the configuration record (mount, read, unmount)
//  2. No record: run provisioning and return its result
//  3. Connect the network link
//  4. Synchronise the clock (best effort)
//  5. Dial the secure transport
//  6. Broker handshake
//  7. Arm the maintenance watcher and run the loop
//
// Resources are released in reverse order on every return path: broker
// session, then transport, then link.
//
// Returns:
//   - nil when the broker reports disconnected or ctx is cancelled, including
//     during provisioning
//   - ErrSessionLost (wrapped) when yield fails
//   - ErrRestartRequired after provisioning or a maintenance erase
//   - any startup failure, wrapped
func (c *Controller) Run(ctx context.Context) error {
	rec, err := c.store.Load()
	switch {
	case errors.Is(err, store.ErrNoRecord):
		c.logger.Info("no configuration record, entering provisioning mode")
		return c.provision(ctx)
	case err != nil:
		return fmt.Errorf("loading configuration: %w", err)
	}
	c.logger.Info("configuration loaded", "record", rec.String())

	if err := c.link.Connect(ctx, rec.NetworkName, rec.NetworkSecret); err != nil {
		return fmt.Errorf("bringing up network: %w", err)
	}
	defer func() {
		if err := c.link.Disconnect(); err != nil {
			c.logger.Warn("network disconnect failed", "error", err)
		}
	}()

	c.syncClock(ctx)

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.logDialError(err)
		return fmt.Errorf("establishing secure transport: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
	}()

	session, err := c.connect(conn)
	if err != nil {
		var ce *mqtt.ConnectError
		if errors.As(err, &ce) {
			c.logger.Error("broker rejected connection", "return_code", ce.ReturnCode)
		}
		return fmt.Errorf("broker handshake: %w", err)
	}
	defer session.Disconnect()

	c.logger.Info("broker session established")
	return c.loop(ctx, rec, session)
}

// provision runs the provisioner. Cancellation is a shutdown request and
// ends cleanly, as it does in the alarm loop.
func (c *Controller) provision(ctx context.Context) error {
	err := c.provisioner.Run(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		c.logger.Info("shutdown requested during provisioning")
		return nil
	}
	return err
}

func (c *Controller) loop(ctx context.Context, rec store.Record, session Session) error {
	mode := c.cfg.Maintenance.Mode
	flag := &maintenance.Flag{}

	var override *maintenance.Flag
	if mode == config.MaintenanceClearAlert {
		override = flag
	}

	alarm := NewAlarm(AlarmConfig{
		Topic:     alertTopic(c.cfg.MQTT),
		Target:    rec.NotificationTarget,
		Door:      c.board.Door,
		Indicator: c.board.Indicator,
		Badge:     c.board.Badge,
		Override:  override,
		Recorder:  c.recorder,
		Logger:    c.logger.With("component", "alarm"),
	})
	c.alarm.Store(alarm)

	c.logger.Info("alarm armed", "topic", alertTopic(c.cfg.MQTT))

	stopWatcher := c.armMaintenance(ctx, flag)
	defer stopWatcher()

	interval := c.cfg.GetPollInterval()
	for {
		if !session.IsConnected() {
			c.logger.Warn("broker session disconnected, shutting down")
			alarm.Terminate(ctx)
			return nil
		}

		if err := session.Yield(ctx); err != nil {
			alarm.Terminate(ctx)
			if ctx.Err() != nil {
				c.logger.Info("shutdown requested")
				return nil
			}
			c.logger.Error("broker yield failed", "error", err)
			return fmt.Errorf("%w: %w", ErrSessionLost, err)
		}

		alarm.Tick(ctx, session)

		if mode == config.MaintenanceEraseStore && flag.Consume() {
			alarm.Terminate(ctx)
			if err := c.store.Erase(); err != nil {
				return fmt.Errorf("erasing configuration: %w", err)
			}
			c.logger.Warn("configuration erased by maintenance button")
			return ErrRestartRequired
		}

		select {
		case <-ctx.Done():
			alarm.Terminate(ctx)
			c.logger.Info("shutdown requested")
			return nil
		case <-time.After(interval):
		}
	}
}

// armMaintenance starts the button watcher when one is fitted and enabled.
// The returned func stops it and waits for its goroutines.
func (c *Controller) armMaintenance(ctx context.Context, flag *maintenance.Flag) func() {
	if c.cfg.Maintenance.Mode == config.MaintenanceDisabled || c.board.Button == nil {
		return func() {}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	debounce := time.Duration(c.cfg.Maintenance.Debounce) * time.Millisecond
	w := maintenance.NewWatcher(c.board.Button, flag, debounce)
	w.Start(watchCtx)
	c.logger.Info("maintenance button armed", "mode", c.cfg.Maintenance.Mode)

	return func() {
		cancel()
		<-w.Done()
		c.logger.Debug("maintenance watcher stopped", "presses", w.Signals())
		if drops := w.Drops(); drops > 0 {
			c.logger.Warn("maintenance edges dropped", "count", drops)
		}
	}
}

// alertTopic is the configured shared topic, or the per-node topic when
// none is set.
func alertTopic(cfg config.MQTTConfig) string {
	if cfg.AlertTopic != "" {
		return cfg.AlertTopic
	}
	return mqtt.Topics{}.Alert(cfg.Broker.ClientID)
}

func (c *Controller) syncClock(ctx context.Context) {
	if c.clock == nil {
		return
	}
	offset, err := c.clock.Sync(ctx)
	switch {
	case errors.Is(err, clock.ErrDisabled):
	case err != nil:
		c.logger.Warn("clock sync failed", "error", err)
	default:
		c.logger.Info("clock synchronised", "offset", offset.String())
	}
}

// logDialError reports the transport failure with its class and code.
func (c *Controller) logDialError(err error) {
	var te *transport.Error
	if !errors.As(err, &te) {
		c.logger.Error("secure transport failed", "error", err)
		return
	}
	c.logger.Error("secure transport failed",
		"class", string(te.Class()),
		"code", fmt.Sprintf("-0x%04X", -te.Code),
		"op", te.Op,
		"error", te.Err,
	)
}
