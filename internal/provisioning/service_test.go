package provisioning

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/netlink"
	"github.com/nerrad567/doorguard-core/internal/store"
)

// MockStore records saved records and can be told to fail.
type MockStore struct {
	mu      sync.Mutex
	saved   []store.Record
	saveErr error
}

func (m *MockStore) Save(rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *MockStore) records() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Record(nil), m.saved...)
}

// MockLink records access point calls.
type MockLink struct {
	mu       sync.Mutex
	calls    []string
	startErr error
}

func (m *MockLink) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *MockLink) Connect(context.Context, string, string) error { m.record("connect"); return nil }
func (m *MockLink) Disconnect() error                             { m.record("disconnect"); return nil }
func (m *MockLink) StartAccessPoint(_ context.Context, ssid, _ string) error {
	m.record("start-ap " + ssid)
	return m.startErr
}
func (m *MockLink) StopAccessPoint() error { m.record("stop-ap"); return nil }

func (m *MockLink) callList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func testConfig() config.ProvisioningConfig {
	return config.ProvisioningConfig{
		Listen:          "127.0.0.1:0",
		AccessPointSSID: "DoorGuard-Setup",
		ReadTimeout:     2,
	}
}

func newTestService(t *testing.T, st RecordWriter, link *MockLink) *Service {
	t.Helper()
	s, err := New(Deps{Config: testConfig(), Store: st, Link: link, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func postForm(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no store", Deps{Link: &MockLink{}, Logger: logging.Discard()}},
		{"no link", Deps{Store: &MockStore{}, Logger: logging.Discard()}},
		{"no logger", Deps{Store: &MockStore{}, Link: &MockLink{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestHandleForm(t *testing.T) {
	s := newTestService(t, &MockStore{}, &MockLink{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, field := range []string{`name="ssid"`, `name="psw"`, `name="id"`, `method="post"`} {
		if !strings.Contains(body, field) {
			t.Errorf("form missing %s", field)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v after GET, want IDLE", s.State())
	}
}

func TestHandleSubmit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantSaved  *store.Record
	}{
		{
			name:       "canonical order",
			body:       "ssid=A&psw=B&id=C",
			wantStatus: http.StatusOK,
			wantSaved:  &store.Record{NetworkName: "A", NetworkSecret: "B", NotificationTarget: "C"},
		},
		{
			name:       "reversed order",
			body:       "id=C&psw=B&ssid=A",
			wantStatus: http.StatusOK,
			wantSaved:  &store.Record{NetworkName: "A", NetworkSecret: "B", NotificationTarget: "C"},
		},
		{
			name:       "percent encoded",
			body:       "ssid=caf%C3%A9&psw=p%26ss&id=12345",
			wantStatus: http.StatusOK,
			wantSaved:  &store.Record{NetworkName: "café", NetworkSecret: "p&ss", NotificationTarget: "12345"},
		},
		{
			name:       "extra field ignored",
			body:       "ssid=A&psw=B&id=C&submit=Save",
			wantStatus: http.StatusOK,
			wantSaved:  &store.Record{NetworkName: "A", NetworkSecret: "B", NotificationTarget: "C"},
		},
		{name: "missing id", body: "ssid=A&psw=B", wantStatus: http.StatusBadRequest},
		{name: "empty psw", body: "ssid=A&psw=&id=C", wantStatus: http.StatusBadRequest},
		{name: "space in ssid", body: "ssid=my+wifi&psw=B&id=C", wantStatus: http.StatusBadRequest},
		{name: "bad encoding", body: "ssid=%zz&psw=B&id=C", wantStatus: http.StatusBadRequest},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "target beyond record limit", body: "ssid=A&psw=B&id=" + strings.Repeat("9", 700), wantStatus: http.StatusBadRequest},
		{name: "oversized", body: "ssid=" + strings.Repeat("a", maxFormBytes) + "&psw=B&id=C", wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &MockStore{}
			s := newTestService(t, st, &MockLink{})
			s.setState(StateServing)

			rec := postForm(t, s.Handler(), tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("POST / status = %d, want %d", rec.Code, tt.wantStatus)
			}

			saved := st.records()
			if tt.wantSaved == nil {
				if len(saved) != 0 {
					t.Errorf("saved %v for rejected submission", saved)
				}
				if s.State() != StateServing {
					t.Errorf("State() = %v after rejection, want SERVING", s.State())
				}
				return
			}

			if len(saved) != 1 || saved[0] != *tt.wantSaved {
				t.Fatalf("saved = %+v, want %+v", saved, *tt.wantSaved)
			}
			if s.State() != StateRestartPending {
				t.Errorf("State() = %v, want RESTART_PENDING", s.State())
			}
			select {
			case <-s.written:
			default:
				t.Error("written not signalled after successful submit")
			}
		})
	}
}

func TestHandleSubmit_OnlyOnce(t *testing.T) {
	st := &MockStore{}
	s := newTestService(t, st, &MockLink{})
	s.setState(StateServing)

	if rec := postForm(t, s.Handler(), "ssid=A&psw=B&id=C"); rec.Code != http.StatusOK {
		t.Fatalf("first POST status = %d", rec.Code)
	}
	if rec := postForm(t, s.Handler(), "ssid=X&psw=Y&id=Z"); rec.Code != http.StatusConflict {
		t.Errorf("second POST status = %d, want 409", rec.Code)
	}
	if n := len(st.records()); n != 1 {
		t.Errorf("records saved = %d, want 1", n)
	}
}

func TestHandleSubmit_StorageFailure(t *testing.T) {
	st := &MockStore{saveErr: store.ErrWriteFailed}
	s := newTestService(t, st, &MockLink{})
	s.setState(StateServing)

	rec := postForm(t, s.Handler(), "ssid=A&psw=B&id=C")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("POST / status = %d, want 500", rec.Code)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want ERROR", s.State())
	}
	select {
	case err := <-s.failed:
		if !errors.Is(err, ErrStorageFailed) || !errors.Is(err, store.ErrWriteFailed) {
			t.Errorf("failure = %v, want ErrStorageFailed wrapping ErrWriteFailed", err)
		}
	default:
		t.Error("storage failure not reported to Run")
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestService(t, &MockStore{}, &MockLink{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /admin status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func waitForAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil || s.State() != StateServing {
		if time.Now().After(deadline) {
			t.Fatal("service never started serving")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Addr().String()
}

func TestRun_WritesRecordAndRequestsRestart(t *testing.T) {
	dir := t.TempDir()
	st := store.New(store.NewDirVolume(dir), "wifi.txt")
	link := &MockLink{}
	s := newTestService(t, st, link)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	addr := waitForAddr(t, s)

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}

	resp, err = http.Post("http://"+addr+"/", "application/x-www-form-urlencoded", strings.NewReader("psw=B&id=C&ssid=A"))
	if err != nil {
		t.Fatalf("POST / error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST / status = %d", resp.StatusCode)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRestartRequired) {
			t.Fatalf("Run() error = %v, want ErrRestartRequired", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after submission")
	}

	data, err := os.ReadFile(filepath.Join(dir, "wifi.txt"))
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if string(data) != "A B C\n" {
		t.Errorf("record = %q, want %q", data, "A B C\n")
	}

	got := link.callList()
	if len(got) != 2 || got[0] != "start-ap DoorGuard-Setup" || got[1] != "stop-ap" {
		t.Errorf("link calls = %v", got)
	}
	if s.State() != StateRestartPending {
		t.Errorf("State() = %v, want RESTART_PENDING", s.State())
	}
}

func TestRun_StorageFailureIsFatal(t *testing.T) {
	s := newTestService(t, &MockStore{saveErr: errors.New("flash gone")}, &MockLink{})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	addr := waitForAddr(t, s)

	resp, err := http.Post("http://"+addr+"/", "application/x-www-form-urlencoded", strings.NewReader("ssid=A&psw=B&id=C"))
	if err != nil {
		t.Fatalf("POST / error = %v", err)
	}
	resp.Body.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStorageFailed) {
			t.Fatalf("Run() error = %v, want ErrStorageFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after storage failure")
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want ERROR", s.State())
	}
}

func TestRun_AccessPointMissingInterface(t *testing.T) {
	link := &MockLink{startErr: netlink.ErrNoInterface}
	s := newTestService(t, &MockStore{}, link)

	err := s.Run(context.Background())
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Run() error = %v, want ErrStartFailed", err)
	}
	// Once provisioning is engaged a missing interface is a start failure,
	// not the clean no-interface exit.
	if errors.Is(err, netlink.ErrNoInterface) {
		t.Errorf("Run() error = %v still matches ErrNoInterface", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want ERROR", s.State())
	}
}

func TestRun_AccessPointFailure(t *testing.T) {
	link := &MockLink{startErr: errors.New("no radio")}
	s := newTestService(t, &MockStore{}, link)

	err := s.Run(context.Background())
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Run() error = %v, want ErrStartFailed", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want ERROR", s.State())
	}
}

func TestRun_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	link := &MockLink{}
	s, err := New(Deps{
		Config: config.ProvisioningConfig{Listen: ln.Addr().String(), ReadTimeout: 1},
		Store:  &MockStore{},
		Link:   link,
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Run() error = %v, want ErrStartFailed", err)
	}
	if s.State() != StateError {
		t.Errorf("State() = %v, want ERROR", s.State())
	}
	calls := link.callList()
	if len(calls) == 0 || calls[len(calls)-1] != "stop-ap" {
		t.Errorf("access point not stopped after listen failure: %v", calls)
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newTestService(t, &MockStore{}, &MockLink{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	waitForAddr(t, s)

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:           "IDLE",
		StateServing:        "SERVING",
		StateError:          "ERROR",
		StateRestartPending: "RESTART_PENDING",
		State(99):           "UNKNOWN",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
