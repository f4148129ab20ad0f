// Package journal records alarm state transitions in the SQLite alert journal.
//
// Every process start gets a fresh boot identifier; the per-boot alert
// sequence restarts at zero, so (boot_id, sequence) identifies an alert.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultListLimit caps List when no limit is given.
const defaultListLimit = 100

// Entry is a single journal row.
type Entry struct {
	ID        int64
	BootID    string
	Sequence  uint32
	State     string
	Published bool
	Error     string
	CreatedAt time.Time
}

// Repository defines the journal operations.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, bootID string, limit int) ([]Entry, error)
}

// SQLiteRepository stores journal entries in the alert_journal table.
type SQLiteRepository struct {
	db     *sql.DB
	bootID string
}

// NewSQLiteRepository creates a repository stamping entries with a new boot
// identifier.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, bootID: uuid.NewString()}
}

// BootID returns the identifier written with entries from this process.
func (r *SQLiteRepository) BootID() string {
	return r.bootID
}

// Append inserts e. BootID and CreatedAt are filled in when empty, and ID is
// set from the inserted row.
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e.BootID == "" {
		e.BootID = r.bootID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_journal (boot_id, sequence, state, published, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.BootID, e.Sequence, e.State, e.Published,
		nullableString(e.Error),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// List returns the entries of bootID in insertion order. An empty bootID
// lists the current boot.
func (r *SQLiteRepository) List(ctx context.Context, bootID string, limit int) ([]Entry, error) {
	if bootID == "" {
		bootID = r.bootID
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, boot_id, sequence, state, published, error, created_at
		 FROM alert_journal WHERE boot_id = ? ORDER BY id LIMIT ?`,
		bootID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.BootID, &e.Sequence, &e.State,
			&e.Published, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if errText.Valid {
			e.Error = errText.String
		}

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return entries, nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
