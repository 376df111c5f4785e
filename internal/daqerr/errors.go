// Package daqerr provides the structured error type used across the
// acquisition daemon, mapping failures to the response table in §7 of the
// design: each Kind has one fixed handling policy applied by the caller.
package daqerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure by its required response, per the error
// handling table: some kinds are fatal (caller sets the quit flag), some
// are retried, some are merely logged.
type Kind string

const (
	KindDeviceOpen      Kind = "device open failed"
	KindDeviceIO        Kind = "device I/O error"
	KindLowSpace        Kind = "insufficient free space"
	KindConfigMissing   Kind = "configuration file missing"
	KindConfigParse     Kind = "configuration parse error"
	KindQueueFull       Kind = "queue full"
	KindPopVerify       Kind = "pop verification mismatch"
	KindDoubleFree      Kind = "double free"
	KindScalerDisagree  Kind = "scaler read disagreement"
	KindRename          Kind = "cross-filesystem rename"
	KindRunfile         Kind = "run number file error"
	KindSharedStatus    Kind = "shared status mapping error"
)

// Error is a structured error carrying the operation, kind, and wrapped
// cause, following the teacher's *ublk.Error shape.
type Error struct {
	Op    string
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("daq: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("daq: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New constructs an Error with no wrapped cause.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap constructs an Error wrapping an existing cause.
func Wrap(op string, kind Kind, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err (or any error it wraps) is a *Error of kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// IsFatal reports whether errors of this kind should set the process-wide
// quit flag, per the §7 table (device open exhaustion, low space mid-run,
// runfile errors are fatal; queue-full, pop-verify mismatch, double-free,
// scaler disagreement, config-parse-on-reload, and cross-fs rename are
// not — they are logged and the caller proceeds).
func IsFatal(kind Kind) bool {
	switch kind {
	case KindDeviceOpen, KindLowSpace, KindRunfile:
		return true
	default:
		return false
	}
}
