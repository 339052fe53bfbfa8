// Package corehosterr defines the caller-distinguishable error kinds used
// across the corehost runtime substrate, built on top of
// github.com/gravitational/trace so every error carries a captured stack
// and classifies through trace.Is* in addition to Is/As.
package corehosterr

import (
	"errors"
	"fmt"

	"github.com/gravitational/trace"
)

// Kind identifies one of the eleven error kinds the core surfaces to callers.
type Kind string

const (
	DuplicateRoot     Kind = "duplicate_root"
	ContainerLocked   Kind = "container_locked"
	AlreadyRegistered Kind = "already_registered"
	NotFound          Kind = "not_found"
	FactoryCycle      Kind = "factory_cycle"
	ScopeUnavailable  Kind = "scope_unavailable"
	InvalidTransition Kind = "invalid_transition"
	UnknownAbility    Kind = "unknown_ability"
	LogicError        Kind = "logic_error"
	LockTimeout       Kind = "lock_timeout"
	ConfigMissing     Kind = "config_missing"
)

// Error wraps a trace.Error with the kind so callers can switch on Kind
// while still getting trace's stack capture and message formatting.
type Error struct {
	trace.Error
	Kind Kind
}

func (e *Error) Unwrap() error { return e.Error }

func wrap(kind Kind, inner trace.Error) *Error {
	return &Error{Error: inner, Kind: kind}
}

func DuplicateRootf(format string, args ...any) error {
	return wrap(DuplicateRoot, trace.AlreadyExists(format, args...))
}

func ContainerLockedf(format string, args ...any) error {
	return wrap(ContainerLocked, trace.AccessDenied(format, args...))
}

func AlreadyRegisteredf(format string, args ...any) error {
	return wrap(AlreadyRegistered, trace.AlreadyExists(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return wrap(NotFound, trace.NotFound(format, args...))
}

func FactoryCyclef(format string, args ...any) error {
	return wrap(FactoryCycle, trace.BadParameter(format, args...))
}

func ScopeUnavailablef(format string, args ...any) error {
	return wrap(ScopeUnavailable, trace.AccessDenied(format, args...))
}

func InvalidTransitionf(format string, args ...any) error {
	return wrap(InvalidTransition, trace.BadParameter(format, args...))
}

func UnknownAbilityf(format string, args ...any) error {
	return wrap(UnknownAbility, trace.NotFound(format, args...))
}

func LogicErrorf(format string, args ...any) error {
	return wrap(LogicError, trace.BadParameter(format, args...))
}

func LockTimeoutf(format string, args ...any) error {
	return wrap(LockTimeout, trace.LimitExceeded(format, args...))
}

func ConfigMissingf(format string, args ...any) error {
	return wrap(ConfigMissing, trace.NotFound(format, args...))
}

// Is reports whether err (or anything it wraps) was produced with the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, and whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// AsString renders a compact "kind: message" form for logging.
func AsString(err error) string {
	if kind, ok := KindOf(err); ok {
		return fmt.Sprintf("%s: %v", kind, err)
	}
	return err.Error()
}
