package main

import (
	"context"
	"time"

	"github.com/nerrad567/doorguard-core/internal/controller"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/config"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/database"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/doorguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/doorguard-core/internal/journal"
	"github.com/nerrad567/doorguard-core/migrations"
)

// journalWriteTimeout bounds one journal insert. Transitions are recorded
// from the alarm loop, which must not stall on a slow flash write.
const journalWriteTimeout = 500 * time.Millisecond

// summaryTimeout bounds the per-boot journal summary read on close.
const summaryTimeout = 2 * time.Second

// wallClock supplies diagnostic timestamps. *clock.Clock satisfies it.
type wallClock interface {
	Now() time.Time
	Synced() bool
}

// transitionRecorder fans alarm transitions out to the journal and telemetry.
// Either sink may be nil. A nil clock stamps with the local time.
type transitionRecorder struct {
	deviceID string
	clock    wallClock
	journal  journal.Repository
	influx   *influxdb.Client
	log      *logging.Logger
}

// RecordTransition implements controller.Recorder.
func (r *transitionRecorder) RecordTransition(ctx context.Context, t controller.Transition) {
	state := t.To.String()
	at, synced := r.now()

	if r.journal != nil {
		e := &journal.Entry{
			Sequence:  t.Sequence,
			State:     state,
			Published: t.Published,
			CreatedAt: at.UTC(),
		}
		if t.Err != nil {
			e.Error = t.Err.Error()
		}

		// Terminal transitions are recorded after shutdown was requested.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
		if err := r.journal.Append(writeCtx, e); err != nil {
			r.log.Warn("journal write failed", "state", state, "error", err)
		}
		cancel()
	}

	if r.influx != nil {
		r.influx.WriteDoorEvent(influxdb.DoorEvent{
			DeviceID:    r.deviceID,
			State:       state,
			Sequence:    t.Sequence,
			At:          at,
			ClockSynced: synced,
		})
		// The loop is ending; push the batch out before teardown.
		if t.To == controller.StateTerminated {
			r.influx.Flush()
		}
	}
}

func (r *transitionRecorder) now() (time.Time, bool) {
	if r.clock == nil {
		return time.Now(), false
	}
	return r.clock.Now(), r.clock.Synced()
}

// openRecorder opens the optional journal and telemetry sinks. A sink that
// fails to open is logged and left out; the alarm runs without it.
// It returns nil when neither sink is available.
func openRecorder(ctx context.Context, cfg *config.Config, clk wallClock, log *logging.Logger) (controller.Recorder, func()) {
	r := &transitionRecorder{deviceID: cfg.Device.ID, clock: clk, log: log.With("component", "recorder")}
	var closers []func()

	if cfg.Journal.Enabled {
		if db, err := openJournal(ctx, cfg.Journal); err != nil {
			log.Warn("alert journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			repo := journal.NewSQLiteRepository(db.DB)
			r.journal = repo
			closers = append(closers, func() {
				logBootSummary(repo, log)
				if err := db.Close(); err != nil {
					log.Error("error closing journal", "error", err)
				}
			})

			version, err := db.SchemaVersion(ctx)
			if err != nil {
				log.Warn("reading journal schema version failed", "error", err)
			}
			log.Info("alert journal opened",
				"path", db.Path(),
				"schema_version", version,
				"boot_id", repo.BootID(),
			)
		}
	}

	if cfg.InfluxDB.Enabled {
		if client, err := influxdb.Connect(cfg.InfluxDB); err != nil {
			log.Warn("telemetry unavailable", "url", cfg.InfluxDB.URL, "error", err)
		} else {
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			r.influx = client
			closers = append(closers, func() { client.Close() }) //nolint:errcheck // Close always returns nil
			log.Info("telemetry connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if r.journal == nil && r.influx == nil {
		return nil, closeAll
	}
	return r, closeAll
}

// bootSummary counts the journal entries of one boot.
type bootSummary struct {
	Transitions int
	Alerts      int
	Unpublished int
}

func summarise(entries []journal.Entry) bootSummary {
	var s bootSummary
	s.Transitions = len(entries)
	for _, e := range entries {
		if e.State != controller.StateAlerting.String() {
			continue
		}
		s.Alerts++
		if !e.Published {
			s.Unpublished++
		}
	}
	return s
}

// logBootSummary reads back this boot's entries and logs their counts.
func logBootSummary(repo journal.Repository, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	entries, err := repo.List(ctx, "", 0)
	if err != nil {
		log.Warn("reading journal summary failed", "error", err)
		return
	}
	s := summarise(entries)
	log.Info("alert journal summary",
		"transitions", s.Transitions,
		"alerts", s.Alerts,
		"unpublished", s.Unpublished,
	)
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return db, nil
}
