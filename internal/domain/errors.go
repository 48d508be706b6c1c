package domain

import (
	"errors"
	"fmt"
)

// Upstream classification. Transports wrap their errors with one of these so
// the fetcher can decide whether to back off, retry, split, or give up.
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient upstream failure")
	ErrRequestRejected = errors.New("request rejected")
)

// Pipeline errors.
var (
	ErrPlanningInconsistency = errors.New("stored data is newer than now")
	ErrStrikeOffLadder       = errors.New("strike not on ladder")
	ErrSpotMissing           = errors.New("no spot at timestamp")
	ErrLocked                = errors.New("dataset locked by another run")
)

// FetchExhaustedError reports a window that could not be fetched within the
// retry budget. Windows fetched before it are unaffected.
type FetchExhaustedError struct {
	Range    DateRange
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Range, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// StorageWriteError reports a failed write or swap of a dataset file. The
// previously stored file is left untouched.
type StorageWriteError struct {
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }
