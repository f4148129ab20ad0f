// Package database provides SQLite connectivity for the DoorGuard alert journal.
//
// This package manages:
//   - Opening the journal file with WAL mode and a busy timeout
//   - Additive schema migrations read from an fs.FS
//   - Health checks for startup logging
//
// The journal is optional and disabled by default. Nothing in the alarm path
// depends on it being available.
//
// Usage:
//
//	db, err := database.Open(cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
package database
