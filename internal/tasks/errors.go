package tasks

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHashName is returned by StartFieldsDeletion for a dataset name
	// it has no reaper for.
	ErrInvalidHashName = errors.New("tasks: invalid hash name")

	// ErrInvalidBatchSize is returned by NewReaper when the deletion batch
	// size is smaller than one.
	ErrInvalidBatchSize = errors.New("tasks: deletion bulk count must be at least 1")

	// ErrInvalidExpiry is returned by NewReaper for an expiry below one second.
	ErrInvalidExpiry = errors.New("tasks: expiry must be at least one second")
)

// ScanError reports that a scan over the hash could not be started or
// failed while iterating.
type ScanError struct {
	Hash string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("tasks: scanning hash %q failed: %v", e.Hash, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// RemovalError reports that a bulk delete request failed.
type RemovalError struct {
	Hash string
	Err  error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("tasks: removing fields from hash %q failed: %v", e.Hash, e.Err)
}

func (e *RemovalError) Unwrap() error { return e.Err }

// MismatchError reports a bulk delete that removed a different number of
// fields than requested. Something else touched the hash between scan and
// delete, which the reaper treats as fatal.
type MismatchError struct {
	Hash     string
	Expected int
	Deleted  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("tasks: deleted %d fields from hash %q, expected %d", e.Deleted, e.Hash, e.Expected)
}
