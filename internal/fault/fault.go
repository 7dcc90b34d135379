// Package fault defines the error taxonomy shared by the census, hashing and
// reconciliation packages.
//
// Every error that crosses a package boundary carries a Kind so the CLI can
// decide between "record and continue" and "abort with a distinct exit code"
// without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindConfiguration indicates an unresolvable device or invalid config file.
	KindConfiguration Kind = "configuration"

	// KindIO indicates an unreadable file or directory.
	// Per-item IO failures are normally recorded, not returned.
	KindIO Kind = "io"

	// KindNetwork indicates the graph store was unreachable or timed out
	// on every candidate endpoint.
	KindNetwork Kind = "network"

	// KindStructural indicates the target subgraph is absent or empty.
	KindStructural Kind = "structural"

	// KindData indicates a malformed or incomplete persisted snapshot.
	KindData Kind = "data"
)

// Error is a categorized failure with the operation and subject that caused it.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op is the operation that failed (e.g. "read census snapshot").
	Op string

	// Path is the file, directory, device or graph URI involved, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf creates an Error whose cause is a formatted message.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
// Uses errors.As to handle wrapped errors.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
