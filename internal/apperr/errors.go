// Package apperr defines the error kinds surfaced by sync operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure for the calling application.
type Kind string

// Error kinds.
const (
	KindPortUnavailable  Kind = "port_unavailable"
	KindConnectionFailed Kind = "connection_failed"
	KindRemoteError      Kind = "remote_error"
	KindCorruptArchive   Kind = "corrupt_archive"
	KindNoManifestFound  Kind = "no_manifest_found"
	KindBusy             Kind = "busy"
	KindInternal         Kind = "internal"
)

// Sentinels for errors.Is matching. Any *Error with the same Kind matches.
var (
	ErrPortUnavailable  = &Error{Kind: KindPortUnavailable}
	ErrConnectionFailed = &Error{Kind: KindConnectionFailed}
	ErrRemoteError      = &Error{Kind: KindRemoteError}
	ErrCorruptArchive   = &Error{Kind: KindCorruptArchive}
	ErrNoManifestFound  = &Error{Kind: KindNoManifestFound}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Error is a classified sync failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = Summary(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Wrap classifies err as kind unless it already carries a kind.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(kind, message, err)
}

// Summary returns the short user-facing text for a kind.
func Summary(kind Kind) string {
	switch kind {
	case KindPortUnavailable:
		return "failed to start service"
	case KindConnectionFailed:
		return "connection failed"
	case KindRemoteError:
		return "peer is not serving a backup"
	case KindCorruptArchive, KindNoManifestFound, KindInternal:
		return "sync failed"
	case KindBusy:
		return "already syncing"
	default:
		return "unknown error"
	}
}
