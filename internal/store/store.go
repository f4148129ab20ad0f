package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Store reads and writes the single configuration record on a Volume.
//
// The volume is mounted and unmounted around every operation and is never
// held between calls.
//
// Thread Safety:
//   - Operations are serialised; the store is safe for concurrent use.
type Store struct {
	vol      Volume
	filename string

	mu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Store for the record file named filename on vol.
func New(vol Volume, filename string) *Store {
	return &Store{
		vol:      vol,
		filename: filename,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger used for mount retries and lifecycle events.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Store) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Load mounts the volume, reads and parses the record, and unmounts.
//
// Returns:
//   - Record: The parsed record
//   - error: ErrNoRecord if absent, ErrMalformedRecord if it does not parse,
//     ErrMountFailed if the volume cannot be mounted after one reformat
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mount(); err != nil {
		return Record{}, err
	}
	defer s.unmount()

	f, err := os.Open(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("opening record: %w", err)
	}
	defer f.Close()

	// One byte past the limit distinguishes a full-size record from a
	// truncated one.
	data, err := io.ReadAll(io.LimitReader(f, MaxRecordBytes+1))
	if err != nil {
		return Record{}, fmt.Errorf("reading record: %w", err)
	}
	if len(data) > MaxRecordBytes {
		return Record{}, fmt.Errorf("%w: record exceeds %d bytes", ErrMalformedRecord, MaxRecordBytes)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	return ParseRecord(line)
}

// Save validates rec, then mounts the volume and writes the record atomically.
//
// The write goes to a temporary file which is flushed and closed before
// being renamed over the record, so a power loss leaves either the old
// record or the new one, never a partial line.
func (s *Store) Save(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mount(); err != nil {
		return err
	}
	defer s.unmount()

	if err := renameio.WriteFile(s.path(), []byte(rec.Line()), filePermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	s.getLogger().Info("configuration record written", "path", s.path())
	return nil
}

// Erase formats the volume, destroying the record.
// The next Load returns ErrNoRecord.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mount(); err != nil {
		return err
	}
	defer s.unmount()

	if err := s.vol.Format(); err != nil {
		return fmt.Errorf("%w: %w", ErrFormatFailed, err)
	}

	s.getLogger().Warn("configuration volume erased", "root", s.vol.Root())
	return nil
}

// mount mounts the volume, formatting once if the first attempt fails.
func (s *Store) mount() error {
	firstErr := s.vol.Mount()
	if firstErr == nil {
		return nil
	}

	s.getLogger().Warn("volume mount failed, formatting", "error", firstErr)

	if err := s.vol.Format(); err != nil {
		return fmt.Errorf("%w: %w", ErrFormatFailed, err)
	}
	if err := s.vol.Mount(); err != nil {
		return fmt.Errorf("%w: %w", ErrMountFailed, err)
	}
	return nil
}

// unmount releases the volume. Failures are logged; the record has already
// been read or flushed by the time this runs.
func (s *Store) unmount() {
	if err := s.vol.Unmount(); err != nil {
		s.getLogger().Warn("volume unmount failed", "error", err)
	}
}

func (s *Store) path() string {
	return filepath.Join(s.vol.Root(), s.filename)
}
