// Package database opens the relay's SQLite file and applies its schema.
//
// The database holds only the audit trail; geofence definitions live with
// the platform service. The pool is limited to one connection and WAL mode
// is recommended so API reads do not wait on bridge writes.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are YYYYMMDD_HHMMSS_name.up.sql files with an optional
// matching .down.sql, applied oldest first, one transaction each. They are
// additive: new columns are NULLABLE or carry a DEFAULT.
package database
