package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrOffline is matched by every ConnectivityError. The remote store
	// could not be reached; the local store keeps serving.
	ErrOffline = errors.New("remote store is offline")

	// ErrNoPrimaryKey is returned (wrapped in a SchemaError) when a table
	// that must be merged has no discoverable primary key.
	ErrNoPrimaryKey = errors.New("no primary key")

	// ErrSyncInProgress is returned when a run is requested while another
	// run holds the run lock.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ConnectivityError reports that the remote store is unreachable.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("remote store unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrOffline) true for any ConnectivityError.
func (e *ConnectivityError) Is(target error) bool { return target == ErrOffline }

// SchemaError reports a table whose shape prevents merging.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ApplyError reports a failed read, staging, load or merge step.
type ApplyError struct {
	Table string
	// Op is the failing step: read, connect, stage, load, merge, delete,
	// relax or restore.
	Op  string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// WatermarkError reports a failed watermark read or write.
type WatermarkError struct {
	Op  string
	Err error
}

func (e *WatermarkError) Error() string {
	return fmt.Sprintf("failed to %s watermark: %v", e.Op, e.Err)
}

func (e *WatermarkError) Unwrap() error { return e.Err }
