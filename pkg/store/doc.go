// Package store provides SQLite-based persistence for chipctl.
//
// Two tables are kept:
//
//   - sightings: the append-only discovery log written by scans. Rows are
//     never updated or deleted through this package.
//   - claims: one row per claim attempt, from challenge to redemption.
//
// # Usage
//
//	db, err := store.Open(store.DefaultPath())
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// # Thread Safety
//
// The store is safe for concurrent use. SQLite WAL mode lets a running scan
// append sightings while another process reads history.
package store
