package core

import "errors"

// Errors surfaced to the client (§7). Each is returned unwrapped so callers
// can match with errors.Is.
var (
	// ErrUnsupportedSize is returned when the graph table has no entry for
	// the requested plaintext length (d == 0 or d > G_max).
	ErrUnsupportedSize = errors.New("anarcast: unsupported object size")

	// ErrMalformedURI is returned when a URI's declared length disagrees
	// with |hash|, or its implied block count disagrees with the
	// graph-table derivation from L (Open Question (b)).
	ErrMalformedURI = errors.New("anarcast: malformed uri")

	// ErrIrrecoverable is returned when iterative decode reaches a fixed
	// point with data positions still missing.
	ErrIrrecoverable = errors.New("anarcast: object irrecoverable")

	// ErrIntegrity is returned when a hash check fails: the reconstructed
	// plaintext against H0, or a reconstructed block against its URI hash.
	ErrIntegrity = errors.New("anarcast: integrity check failed")

	// ErrClientIO is returned on any read/write failure against the
	// client connection; the caller releases the object buffer and
	// aborts silently.
	ErrClientIO = errors.New("anarcast: client i/o failure")
)

// FatalError marks a condition that should terminate the owning worker (or
// the process, for the cases enumerated in §7: empty ring at lookup time,
// selector/wait failure, unrecoverable socket syscall, duplicate remove).
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return "anarcast: fatal: " + e.Reason + ": " + e.Err.Error()
	}
	return "anarcast: fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatalf(reason string, err error) error {
	return &FatalError{Reason: reason, Err: err}
}
