package book

import "errors"

var (
	// ErrShutdown is returned when a call arrives after Shutdown has completed.
	ErrShutdown = errors.New("book: shutting down")

	// ErrInternal marks an invariant violation: a logic bug that must halt
	// the affected symbol rather than be papered over.
	ErrInternal = errors.New("book: internal invariant violation")
)
