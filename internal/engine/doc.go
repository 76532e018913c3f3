// Package engine synchronizes an offline-capable local store into a remote
// server-of-record store.
//
// # Overview
//
// A run checks connectivity, reads the watermark of the last successful run,
// applies every table of the manifest in dependency order and finally
// advances the watermark to the instant the run started:
//
//	Idle → CheckingConnectivity → ComputingWatermark
//	     → SyncingSequentialTier → SyncingParallelTier
//	     → AdvancingWatermark → Idle
//
// Going offline or failing any table returns to Idle without advancing the
// watermark, so the next run re-examines everything since the last fully
// successful one.
//
// # Change detection
//
// There is no changelog. A table's rows changed since the watermark are the
// rows whose audit column (updated_at, then created_at) is later than it.
// Tables without an audit column are always treated as changed and are read
// in full.
//
// # Applying changes
//
// Changed rows are bulk-loaded into a connection-scoped staging table and
// merged into the target with a single INSERT ... ON CONFLICT statement
// keyed on the remote primary key:
//
//	local rows ──bulk load──▶ stg_<table>_<id> ──merge──▶ remote table
//
// The merge is idempotent; re-applying rows after a partial failure is safe.
// Full sync replaces each remote table instead, with referential checks
// relaxed on that table for the duration of the load.
//
// # Usage
//
//	eng, err := engine.New(engine.Config{
//	    Local:      local,
//	    Remote:     remote,
//	    Manifest:   manifest.Default(),
//	    Watermarks: wm,
//	})
//	if err != nil {
//	    return err
//	}
//
//	out := eng.RunDeltaSync(ctx)
//	if !out.Success {
//	    log.Printf("sync failed: %s", out.FailureReason())
//	}
//
// # Concurrency
//
// Only one run executes at a time. A concurrent call returns immediately
// with ErrSyncInProgress. With Config.LockFile set, the same holds across
// processes.
package engine
