package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/netlink"
	"github.com/nerrad567/doorguard-core/internal/store"
)

const (
	// gracefulShutdownTimeout bounds the wait for the confirmation response
	// to finish before the listener is closed.
	gracefulShutdownTimeout = 5 * time.Second

	// defaultReadTimeout applies when the configuration leaves it unset.
	defaultReadTimeout = 5 * time.Second
)

// RecordWriter persists a configuration record.
type RecordWriter interface {
	Save(rec store.Record) error
}

// Deps holds the dependencies required by the provisioning service.
type Deps struct {
	Config config.ProvisioningConfig
	Store  RecordWriter
	Link   netlink.Link
	Logger *logging.Logger
}

// Service is the provisioning web service.
type Service struct {
	cfg    config.ProvisioningConfig
	store  RecordWriter
	link   netlink.Link
	logger *logging.Logger

	state atomic.Int32

	// saveMu serialises submissions so exactly one record is written.
	saveMu sync.Mutex

	written     chan struct{}
	writtenOnce sync.Once
	failed      chan error

	addr atomic.Value // net.Addr once listening
}

// New creates a provisioning service in state IDLE.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("network link is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Service{
		cfg:     deps.Config,
		store:   deps.Store,
		link:    deps.Link,
		logger:  deps.Logger.With("component", "provisioning"),
		written: make(chan struct{}),
		failed:  make(chan error, 1),
	}, nil
}

// State returns the current state.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Info("provisioning state changed", "from", prev.String(), "to", st.String())
	}
}

// Addr returns the listener address once SERVING, or nil.
func (s *Service) Addr() net.Addr {
	if a, ok := s.addr.Load().(net.Addr); ok {
		return a
	}
	return nil
}

// Run starts the access point and HTTP server and blocks until a record is
// written, a storage failure occurs, or ctx is cancelled.
//
// Returns:
//   - ErrRestartRequired after a record was written
//   - ErrStartFailed (wrapped) if the access point or listener failed
//   - ErrStorageFailed (wrapped) if a submission could not be persisted
//   - ctx.Err() if cancelled
func (s *Service) Run(ctx context.Context) error {
	if err := s.link.StartAccessPoint(ctx, s.cfg.AccessPointSSID, s.cfg.AccessPointPassword); err != nil {
		s.setState(StateError)
		return fmt.Errorf("%w: access point: %v", ErrStartFailed, err)
	}
	defer s.stopAccessPoint()

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("%w: listening on %s: %w", ErrStartFailed, s.cfg.Listen, err)
	}
	s.addr.Store(ln.Addr())

	readTimeout := time.Duration(s.cfg.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      readTimeout,
		IdleTimeout:       readTimeout,
	}

	s.setState(StateServing)
	s.logger.Info("provisioning server listening", "address", ln.Addr().String(), "ssid", s.cfg.AccessPointSSID)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("provisioning server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var result error
		select {
		case <-s.written:
			result = ErrRestartRequired
		case err := <-s.failed:
			result = err
		case <-gctx.Done():
			result = gctx.Err()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("provisioning server shutdown", "error", err)
		}
		return result
	})

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, ErrRestartRequired):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("provisioning cancelled")
	default:
		s.setState(StateError)
	}
	return err
}

func (s *Service) stopAccessPoint() {
	if err := s.link.StopAccessPoint(); err != nil {
		s.logger.Warn("stopping access point", "error", err)
	}
}

// submit persists rec. It returns false if a record was already written.
func (s *Service) submit(rec store.Record) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.State() != StateServing {
		return false, nil
	}

	if err := s.store.Save(rec); err != nil {
		s.setState(StateError)
		err = fmt.Errorf("%w: %w", ErrStorageFailed, err)
		select {
		case s.failed <- err:
		default:
		}
		return false, err
	}

	s.setState(StateRestartPending)
	s.logger.Info("configuration record saved", "record", rec.String())
	return true, nil
}

// markWritten releases Run once the confirmation has been sent.
func (s *Service) markWritten() {
	s.writtenOnce.Do(func() { close(s.written) })
}
