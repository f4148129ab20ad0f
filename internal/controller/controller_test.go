package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/doorguard-core/internal/hardware"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorguard-core/internal/store"
	"github.com/nerrad567/doorguard-core/internal/transport"
)

// callLog records collaborator calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

// MockStore implements ConfigStore.
type MockStore struct {
	rec      store.Record
	loadErr  error
	eraseErr error
	erased   atomic.Bool
	log      *callLog
}

func (s *MockStore) Load() (store.Record, error) {
	s.log.add("store-load")
	return s.rec, s.loadErr
}

func (s *MockStore) Erase() error {
	s.log.add("store-erase")
	s.erased.Store(true)
	return s.eraseErr
}

// MockProvisioner implements Provisioner.
type MockProvisioner struct {
	err   error
	block bool // serve until ctx is cancelled
	log   *callLog
}

func (p *MockProvisioner) Run(ctx context.Context) error {
	p.log.add("provision")
	if p.block {
		<-ctx.Done()
		return fmt.Errorf("provisioning: %w", ctx.Err())
	}
	return p.err
}

// MockLink implements netlink.Link.
type MockLink struct {
	connectErr error
	log        *callLog
	ssid       string
	secret     string
}

func (l *MockLink) Connect(_ context.Context, ssid, secret string) error {
	l.log.add("link-connect")
	l.ssid, l.secret = ssid, secret
	return l.connectErr
}

func (l *MockLink) Disconnect() error {
	l.log.add("link-disconnect")
	return nil
}

func (l *MockLink) StartAccessPoint(context.Context, string, string) error {
	l.log.add("ap-start")
	return nil
}

func (l *MockLink) StopAccessPoint() error {
	l.log.add("ap-stop")
	return nil
}

// mockConn logs Close on one end of a pipe.
type mockConn struct {
	net.Conn
	log *callLog
}

func (c *mockConn) Close() error {
	c.log.add("transport-close")
	return c.Conn.Close()
}

// MockDialer implements Dialer.
type MockDialer struct {
	err error
	log *callLog
}

func (d *MockDialer) Dial(context.Context) (net.Conn, error) {
	d.log.add("dial")
	if d.err != nil {
		return nil, d.err
	}
	local, remote := net.Pipe()
	go func() {
		// Drain so writes on local never block.
		buf := make([]byte, 512)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()
	return &mockConn{Conn: local, log: d.log}, nil
}

// MockSession implements Session.
type MockSession struct {
	log *callLog

	mu         sync.Mutex
	connected  bool
	yields     int
	yieldErrAt int // fail the Nth Yield when > 0
	yieldErr   error
	onYield    func(n int, s *MockSession)
	events     []mqtt.Event
}

func newMockSession(log *callLog) *MockSession {
	return &MockSession{log: log, connected: true}
}

func (s *MockSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MockSession) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MockSession) Yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.yields++
	n := s.yields
	hook := s.onYield
	fail := s.yieldErrAt > 0 && n >= s.yieldErrAt
	s.mu.Unlock()

	if hook != nil {
		hook(n, s)
	}
	if fail {
		return s.yieldErr
	}
	return nil
}

func (s *MockSession) PublishAlert(_ string, ev mqtt.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.log.add("publish")
	return nil
}

func (s *MockSession) Disconnect() {
	s.log.add("broker-disconnect")
	s.setConnected(false)
}

func (s *MockSession) published() []mqtt.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mqtt.Event(nil), s.events...)
}

// pressOnce reports a single button press, then idles.
type pressOnce struct {
	pressed atomic.Bool
}

func (b *pressOnce) WaitForPress(timeout time.Duration) bool {
	if b.pressed.CompareAndSwap(false, true) {
		return true
	}
	time.Sleep(timeout)
	return false
}

type controllerFixture struct {
	log       *callLog
	cfg       *config.Config
	store     *MockStore
	prov      *MockProvisioner
	link      *MockLink
	dialer    *MockDialer
	session   *MockSession
	door      *fakeDoor
	indicator *fakeIndicator
	board     *hardware.Board
	connErr   error
}

func newControllerFixture() *controllerFixture {
	log := &callLog{}
	f := &controllerFixture{
		log: log,
		cfg: &config.Config{
			MQTT:        config.MQTTConfig{AlertTopic: "doorguard/alert"},
			Alarm:       config.AlarmConfig{PollInterval: 1},
			Maintenance: config.MaintenanceConfig{Mode: config.MaintenanceClearAlert},
		},
		store: &MockStore{
			rec: store.Record{NetworkName: "myssid", NetworkSecret: "mypass", NotificationTarget: "12345"},
			log: log,
		},
		prov:      &MockProvisioner{err: ErrRestartRequired, log: log},
		link:      &MockLink{log: log},
		dialer:    &MockDialer{log: log},
		session:   newMockSession(log),
		door:      &fakeDoor{},
		indicator: &fakeIndicator{},
	}
	f.board = &hardware.Board{Door: f.door, Indicator: f.indicator, Badge: &fakeBadge{}}
	return f
}

func (f *controllerFixture) deps() Deps {
	return Deps{
		Config:      f.cfg,
		Store:       f.store,
		Provisioner: f.prov,
		Link:        f.link,
		Dialer:      f.dialer,
		Connect: func(net.Conn) (Session, error) {
			f.log.add("broker-connect")
			if f.connErr != nil {
				return nil, f.connErr
			}
			return f.session, nil
		},
		Board:  f.board,
		Logger: logging.Discard(),
	}
}

func (f *controllerFixture) run(t *testing.T) (*Controller, error) {
	t.Helper()
	c, err := New(f.deps())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c, c.Run(ctx)
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"config", func(d *Deps) { d.Config = nil }},
		{"store", func(d *Deps) { d.Store = nil }},
		{"provisioner", func(d *Deps) { d.Provisioner = nil }},
		{"link", func(d *Deps) { d.Link = nil }},
		{"dialer", func(d *Deps) { d.Dialer = nil }},
		{"connect", func(d *Deps) { d.Connect = nil }},
		{"board", func(d *Deps) { d.Board = nil }},
		{"door", func(d *Deps) { d.Board = &hardware.Board{Indicator: &fakeIndicator{}} }},
		{"logger", func(d *Deps) { d.Logger = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newControllerFixture().deps()
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s should fail", tt.name)
			}
		})
	}

	// Clock and Recorder are optional.
	if _, err := New(newControllerFixture().deps()); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

func TestRun_NoRecordEntersProvisioning(t *testing.T) {
	f := newControllerFixture()
	f.store.loadErr = store.ErrNoRecord

	_, err := f.run(t)
	if !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("Run() error = %v, want ErrRestartRequired", err)
	}

	// No network or broker bring-up before a record exists.
	assertCalls(t, f.log.snapshot(), []string{"store-load", "provision"})
}

func TestRun_ProvisioningFailurePropagates(t *testing.T) {
	f := newControllerFixture()
	f.store.loadErr = store.ErrNoRecord
	f.prov.err = errors.New("provisioning: start failed")

	if _, err := f.run(t); err == nil || errors.Is(err, ErrRestartRequired) {
		t.Errorf("Run() error = %v, want provisioning failure", err)
	}
}

func TestRun_CancelledDuringProvisioning(t *testing.T) {
	f := newControllerFixture()
	f.store.loadErr = store.ErrNoRecord
	f.prov.block = true

	c, err := New(f.deps())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestRun_ProvisioningCanceledErrorWithoutShutdown(t *testing.T) {
	f := newControllerFixture()
	f.store.loadErr = store.ErrNoRecord
	f.prov.err = context.Canceled

	if _, err := f.run(t); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled propagated", err)
	}
}

func TestRun_StartupFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*controllerFixture)
		wantErr   error
		wantCalls []string
	}{
		{
			name:      "malformed record before any network call",
			setup:     func(f *controllerFixture) { f.store.loadErr = store.ErrMalformedRecord },
			wantErr:   store.ErrMalformedRecord,
			wantCalls: []string{"store-load"},
		},
		{
			name:      "mount failure",
			setup:     func(f *controllerFixture) { f.store.loadErr = store.ErrMountFailed },
			wantErr:   store.ErrMountFailed,
			wantCalls: []string{"store-load"},
		},
		{
			name:      "network connect failure",
			setup:     func(f *controllerFixture) { f.link.connectErr = errors.New("association failed") },
			wantCalls: []string{"store-load", "link-connect"},
		},
		{
			name: "secure transport failure",
			setup: func(f *controllerFixture) {
				f.dialer.err = &transport.Error{Op: "handshake", Code: transport.CodeUnknownAuthority, Err: errors.New("x509")}
			},
			wantErr:   transport.ErrSecureTransport,
			wantCalls: []string{"store-load", "link-connect", "dial", "link-disconnect"},
		},
		{
			name: "broker connect failure",
			setup: func(f *controllerFixture) {
				f.connErr = &mqtt.ConnectError{ReturnCode: 5, Err: errors.New("not authorised")}
			},
			wantErr:   mqtt.ErrConnectionFailed,
			wantCalls: []string{"store-load", "link-connect", "dial", "broker-connect", "transport-close", "link-disconnect"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture()
			tt.setup(f)

			_, err := f.run(t)
			if err == nil {
				t.Fatal("Run() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			assertCalls(t, f.log.snapshot(), tt.wantCalls)
		})
	}
}

func TestRun_UsesRecordCredentials(t *testing.T) {
	f := newControllerFixture()
	f.session.onYield = func(_ int, s *MockSession) { s.setConnected(false) }

	if _, err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.link.ssid != "myssid" || f.link.secret != "mypass" {
		t.Errorf("link connected with %q/%q", f.link.ssid, f.link.secret)
	}
}

func TestRun_YieldFailureTearsDownInOrder(t *testing.T) {
	f := newControllerFixture()
	f.session.yieldErrAt = 3
	f.session.yieldErr = errors.New("keepalive timeout")

	_, err := f.run(t)
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("Run() error = %v, want ErrSessionLost", err)
	}

	assertCalls(t, f.log.snapshot(), []string{
		"store-load", "link-connect", "dial", "broker-connect",
		"broker-disconnect", "transport-close", "link-disconnect",
	})
	for _, call := range []string{"broker-disconnect", "transport-close", "link-disconnect"} {
		if n := f.log.count(call); n != 1 {
			t.Errorf("%s called %d times, want 1", call, n)
		}
	}
}

func TestRun_DisconnectedEndsCleanly(t *testing.T) {
	f := newControllerFixture()
	f.session.onYield = func(n int, s *MockSession) {
		if n == 5 {
			s.setConnected(false)
		}
	}

	c, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if got := c.Alarm().Snapshot().State; got != StateTerminated {
		t.Errorf("alarm state = %v, want terminated", got)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	f := newControllerFixture()
	c, err := New(f.deps())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.session.onYield = func(n int, _ *MockSession) {
		if n == 3 {
			cancel()
		}
	}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
	if n := f.log.count("broker-disconnect"); n != 1 {
		t.Errorf("broker-disconnect called %d times", n)
	}
}

func TestRun_AlertPublishedThroughSession(t *testing.T) {
	f := newControllerFixture()
	f.door.set(true)
	rec := &MockRecorder{}

	f.session.onYield = func(_ int, s *MockSession) {
		if len(s.published()) > 0 {
			s.setConnected(false)
		}
	}

	deps := f.deps()
	deps.Recorder = rec
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	events := f.session.published()
	if len(events) != 1 || events[0].Sequence != 0 || events[0].Target != "12345" {
		t.Errorf("published = %+v", events)
	}
	tr := rec.recorded()
	if len(tr) < 2 || tr[0].To != StateAlerting || !tr[0].Published || tr[len(tr)-1].To != StateTerminated {
		t.Errorf("transitions = %+v", tr)
	}
	if f.indicator.isOn() {
		t.Error("indicator left on after shutdown")
	}
}

func TestRun_MaintenanceClearAlert(t *testing.T) {
	f := newControllerFixture()
	f.door.set(true)
	f.board.Button = &pressOnce{}
	rec := &MockRecorder{}

	f.session.onYield = func(_ int, s *MockSession) {
		for _, tr := range rec.recorded() {
			if tr.To == StateDisarmedWaitClose {
				s.setConnected(false)
			}
		}
	}

	deps := f.deps()
	deps.Recorder = rec
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The press may land before the alert is raised and be discarded, so
	// press again until the alert clears.
	go func() {
		for ctx.Err() == nil {
			time.Sleep(20 * time.Millisecond)
			if btn, ok := f.board.Button.(*pressOnce); ok {
				btn.pressed.Store(false)
			}
		}
	}()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.store.erased.Load() {
		t.Error("clear_alert mode erased the store")
	}
	if ctx.Err() != nil {
		t.Fatal("alert was never cleared by the maintenance button")
	}
}

func TestRun_MaintenanceEraseStore(t *testing.T) {
	f := newControllerFixture()
	f.cfg.Maintenance.Mode = config.MaintenanceEraseStore
	f.board.Button = &pressOnce{}

	_, err := f.run(t)
	if !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("Run() error = %v, want ErrRestartRequired", err)
	}
	if !f.store.erased.Load() {
		t.Error("store not erased")
	}

	// Teardown still runs after the erase.
	calls := f.log.snapshot()
	tail := calls[len(calls)-3:]
	assertCalls(t, tail, []string{"broker-disconnect", "transport-close", "link-disconnect"})
}

func TestRun_MaintenanceDisabledIgnoresButton(t *testing.T) {
	f := newControllerFixture()
	f.cfg.Maintenance.Mode = config.MaintenanceDisabled
	f.board.Button = &pressOnce{}
	f.session.onYield = func(n int, s *MockSession) {
		if n == 50 {
			s.setConnected(false)
		}
	}

	if _, err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.board.Button.(*pressOnce).pressed.Load() {
		t.Error("button polled with maintenance disabled")
	}
}

// MockClock implements ClockSyncer.
type MockClock struct {
	calls atomic.Int32
	err   error
}

func (c *MockClock) Sync(context.Context) (time.Duration, error) {
	c.calls.Add(1)
	return time.Second, c.err
}

func TestRun_ClockSyncIsBestEffort(t *testing.T) {
	f := newControllerFixture()
	clk := &MockClock{err: errors.New("ntp timeout")}
	f.session.onYield = func(_ int, s *MockSession) { s.setConnected(false) }

	deps := f.deps()
	deps.Clock = clk
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, clock failure must not be fatal", err)
	}
	if clk.calls.Load() != 1 {
		t.Errorf("Sync called %d times, want 1", clk.calls.Load())
	}
}

func TestAlertTopic(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MQTTConfig
		want string
	}{
		{
			name: "shared topic",
			cfg:  config.MQTTConfig{AlertTopic: "site/door/alert", Broker: config.MQTTBrokerConfig{ClientID: "door-1"}},
			want: "site/door/alert",
		},
		{
			name: "per-node topic when unset",
			cfg:  config.MQTTConfig{Broker: config.MQTTBrokerConfig{ClientID: "door-1"}},
			want: "doorguard/door-1/alert",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alertTopic(tt.cfg); got != tt.want {
				t.Errorf("alertTopic() = %q, want %q", got, tt.want)
			}
		})
	}
}
