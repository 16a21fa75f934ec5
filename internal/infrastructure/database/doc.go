// Package database provides SQLite connectivity for Gray Logic Stage.
//
// The database holds authored stage data (prop groups and transform units)
// and the journal of resolution misses recorded during playback. The live
// registry is never persisted; it is rebuilt from the scene on every start.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: each version has an .up.sql and a .down.sql file
// and runs in its own transaction.
package database
