package kdb

import (
	"errors"
	"fmt"
)

// Sentinel error kinds from the IPC error-handling design. Every
// user-facing call returns either a value or one of these, wrapped
// with context via fmt.Errorf("...: %w", ...) so callers can still
// use errors.Is/errors.As against the sentinel.
var (
	// ErrConnectionRefused - transport failed to open.
	ErrConnectionRefused = errors.New("kdb: connection refused")
	// ErrAuthRejected - handshake completed with a reject byte, or the
	// credentials check failed server-side.
	ErrAuthRejected = errors.New("kdb: authentication rejected")
	// ErrMalformedMessage - header or payload violated a wire invariant.
	ErrMalformedMessage = errors.New("kdb: malformed message")
	// ErrCompressionError - decompression produced fewer/more bytes
	// than declared, or a back-reference pointed out of bounds.
	ErrCompressionError = errors.New("kdb: compression error")
	// ErrTypeError - K value construction violated a type invariant.
	ErrTypeError = errors.New("kdb: type error")
	// ErrPeerClosed - EOF before a complete frame was read.
	ErrPeerClosed = errors.New("kdb: peer closed connection")
	// ErrIoError - underlying transport error (wrapped, not usually
	// returned bare).
	ErrIoError = errors.New("kdb: io error")

	// ErrConnClosed is returned by calls on a Conn that has already
	// been closed locally.
	ErrConnClosed = errors.New("kdb: connection closed")
	// ErrSyncOutstanding is returned if SendSync is called while a
	// previous SendSync on the same Conn has not yet completed.
	ErrSyncOutstanding = errors.New("kdb: sync request already in flight")
)

// QError is the error kind surfaced when the peer's reply is a q
// error value (wire tag -128). Unlike every other error kind, a
// QError from SendSync is a normal, recoverable outcome: the session
// remains usable for further requests.
type QError struct {
	Message string
}

func (e *QError) Error() string { return "'" + e.Message }

// Error is a K value that carries a q error (tag KERR). Its Data is
// the error text.
func Error(err error) *K {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &K{Type: KERR, Attr: NONE, Data: msg}
}

// Err converts an error-tagged K value into a Go error (a *QError),
// or nil if k does not carry tag KERR.
func (k *K) Err() error {
	if k == nil || k.Type != KERR {
		return nil
	}
	return &QError{Message: k.Data.(string)}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformedMessage)
}

func typeError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrTypeError)
}

func compressionError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrCompressionError)
}
