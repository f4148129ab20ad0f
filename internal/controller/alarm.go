package controller

import (
	"context"
	"sync"

	"github.com/nerrad567/doorguard-core/internal/hardware"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorguard-core/internal/maintenance"
)

// State is a state of the alarm cycle.
type State int

const (
	StateWatching State = iota
	StateAlerting
	StateDisarmedWaitClose
	StateTerminated
)

// String returns the state name used in logs, the journal and telemetry.
func (s State) String() string {
	switch s {
	case StateWatching:
		return "watching"
	case StateAlerting:
		return "alerting"
	case StateDisarmedWaitClose:
		return "disarmed_wait_close"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Publisher is the part of the broker session the alarm uses.
type Publisher interface {
	IsConnected() bool
	PublishAlert(topic string, ev mqtt.Event) error
}

// Snapshot is a copy of the alarm session state.
type Snapshot struct {
	State        State
	DoorOpen     bool
	AlertActive  bool
	NextSequence uint32
}

// Transition describes one state change, handed to the Recorder.
type Transition struct {
	From      State
	To        State
	Sequence  uint32
	Published bool
	Err       error
}

// Recorder receives alarm transitions. It is called from the alarm loop and
// must return promptly. Failures are the implementation's to log.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition)
}

// AlarmConfig holds the fixed inputs of the alarm cycle.
type AlarmConfig struct {
	Topic  string
	Target string

	Door      hardware.DoorSensor
	Indicator hardware.Indicator
	Badge     hardware.BadgeReader

	// Override is consumed as a disarm in ALERTING. Nil when the
	// maintenance button does not clear alerts.
	Override *maintenance.Flag

	Recorder Recorder
	Logger   *logging.Logger
}

// Alarm is the WATCHING, ALERTING, DISARMED-WAIT-CLOSE cycle.
//
// The indicator is on exactly while the state is ALERTING, and an alert is
// published only on the WATCHING to ALERTING edge, so repeated open reads
// never re-publish.
//
// Thread Safety:
//   - Tick and Terminate must be called from one goroutine.
//   - Snapshot is safe from any goroutine.
type Alarm struct {
	cfg AlarmConfig

	mu          sync.RWMutex
	state       State
	doorOpen    bool
	alertActive bool
	nextSeq     uint32
}

// NewAlarm creates an Alarm in WATCHING with the door assumed closed.
func NewAlarm(cfg AlarmConfig) *Alarm {
	if cfg.Badge == nil {
		cfg.Badge = hardware.NoBadge{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Alarm{cfg: cfg, state: StateWatching}
}

// Snapshot returns the current session state.
func (a *Alarm) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		State:        a.state,
		DoorOpen:     a.doorOpen,
		AlertActive:  a.alertActive,
		NextSequence: a.nextSeq,
	}
}

// Tick runs one iteration: sample the door and advance the cycle.
// It returns the state after the iteration.
func (a *Alarm) Tick(ctx context.Context, pub Publisher) State {
	state := a.Snapshot().State
	if state == StateTerminated {
		return state
	}

	open, err := a.cfg.Door.DoorOpen()
	if err != nil {
		// A glitch leaves the previous sample in place.
		a.cfg.Logger.Warn("door sensor read failed", "error", err)
		open = a.Snapshot().DoorOpen
	}
	a.mu.Lock()
	a.doorOpen = open
	a.mu.Unlock()

	switch state {
	case StateWatching:
		if open {
			a.raise(ctx, pub)
		}
	case StateAlerting:
		if a.disarmRequested() {
			a.disarm(ctx)
		}
	case StateDisarmedWaitClose:
		if !open {
			a.transition(ctx, Transition{From: state, To: StateWatching})
		}
	}

	return a.Snapshot().State
}

// Terminate moves the alarm to TERMINATED and turns the indicator off.
func (a *Alarm) Terminate(ctx context.Context) {
	from := a.Snapshot().State
	if from == StateTerminated {
		return
	}
	a.mu.Lock()
	a.alertActive = false
	a.mu.Unlock()

	a.setIndicator(false)
	a.transition(ctx, Transition{From: from, To: StateTerminated})
}

// raise enters ALERTING and publishes one event with the next sequence.
func (a *Alarm) raise(ctx context.Context, pub Publisher) {
	// A press while not alerting must not pre-disarm the next alert.
	if a.cfg.Override != nil {
		a.cfg.Override.Consume()
	}

	a.mu.Lock()
	seq := a.nextSeq
	a.nextSeq++
	a.alertActive = true
	a.mu.Unlock()

	a.setIndicator(true)

	tr := Transition{From: StateWatching, To: StateAlerting, Sequence: seq}
	ev := mqtt.Event{Sequence: seq, Target: a.cfg.Target}

	switch {
	case !pub.IsConnected():
		tr.Err = mqtt.ErrNotConnected
	default:
		tr.Err = pub.PublishAlert(a.cfg.Topic, ev)
	}

	if tr.Err != nil {
		// The indicator stays authoritative; the dropped event is not retried.
		a.cfg.Logger.Error("alert publish failed", "sequence", seq, "error", tr.Err)
	} else {
		tr.Published = true
		a.cfg.Logger.Info("alert published", "sequence", seq, "topic", a.cfg.Topic)
	}

	a.transition(ctx, tr)
}

func (a *Alarm) disarmRequested() bool {
	present, err := a.cfg.Badge.BadgePresent()
	if err != nil {
		a.cfg.Logger.Warn("badge reader query failed", "error", err)
	}
	if present && err == nil {
		a.cfg.Logger.Info("badge detected, alert cleared")
		return true
	}
	if a.cfg.Override != nil && a.cfg.Override.Consume() {
		a.cfg.Logger.Info("maintenance override, alert cleared")
		return true
	}
	return false
}

func (a *Alarm) disarm(ctx context.Context) {
	a.mu.Lock()
	a.alertActive = false
	seq := a.nextSeq - 1
	a.mu.Unlock()

	a.setIndicator(false)
	a.transition(ctx, Transition{From: StateAlerting, To: StateDisarmedWaitClose, Sequence: seq})
}

func (a *Alarm) setIndicator(on bool) {
	if err := a.cfg.Indicator.Set(on); err != nil {
		a.cfg.Logger.Warn("alert indicator write failed", "on", on, "error", err)
	}
}

func (a *Alarm) transition(ctx context.Context, tr Transition) {
	a.mu.Lock()
	a.state = tr.To
	a.mu.Unlock()

	a.cfg.Logger.Debug("alarm state changed", "from", tr.From.String(), "to", tr.To.String())
	if a.cfg.Recorder != nil {
		a.cfg.Recorder.RecordTransition(ctx, tr)
	}
}
