// Package taskscope identifies "which cooperative task am I in, if any".
// Go has no implicit fiber/task stack to inspect, so the scope handle is
// carried explicitly through a context.Context value rather than inferred
// from call-stack introspection.
package taskscope

import (
	"context"

	"github.com/corehostfw/corehost/corehosterr"
	"github.com/corehostfw/corehost/lifecycle"
	"github.com/google/uuid"
)

// Kind distinguishes a cooperative-task scope from the process scope.
type Kind uint8

const (
	KindTask Kind = iota
	KindProcess
)

// Scope is an opaque, comparable handle identifying an execution context.
// Two TaskScope values are equal iff their task ids are equal; all
// ProcessScope values obtained from the same root are equal.
type Scope struct {
	kind   Kind
	rootID string
	taskID string
}

// RootID returns the owning Root's id. Exposed for diagnostics.
func (s Scope) RootID() string { return s.rootID }

// IsTask reports whether s is a TaskScope.
func (s Scope) IsTask() bool { return s.kind == KindTask }

// String renders a debug-friendly representation.
func (s Scope) String() string {
	if s.kind == KindProcess {
		return "process:" + s.rootID
	}
	return "task:" + s.rootID + ":" + s.taskID
}

// ProcessScope returns the distinguished process-wide scope for rootID.
func ProcessScope(rootID string) Scope {
	return Scope{kind: KindProcess, rootID: rootID}
}

type taskKey struct{}

// NewTask returns a context carrying a freshly minted TaskScope. Nested
// tasks never inherit an enclosing task's id — each call to NewTask mints
// an independent scope.
func NewTask(ctx context.Context, rootID string) (context.Context, Scope) {
	s := Scope{kind: KindTask, rootID: rootID, taskID: uuid.NewString()}
	return context.WithValue(ctx, taskKey{}, s), s
}

// WithTask attaches an already-known TaskScope to ctx. Useful for threading
// a scope across API boundaries (e.g. a server handler restoring the scope
// established when the request began).
func WithTask(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, taskKey{}, s)
}

// Current resolves the scope that applies to ctx: the TaskScope stored on
// it, if any, else the process scope once the phase has reached Ready, else
// ScopeUnavailable.
func Current(ctx context.Context, rootID string, phase lifecycle.Phase) (Scope, error) {
	if s, ok := ctx.Value(taskKey{}).(Scope); ok && s.rootID == rootID {
		return s, nil
	}
	if phase == lifecycle.Ready {
		return ProcessScope(rootID), nil
	}
	return Scope{}, corehosterr.ScopeUnavailablef("scoped services can only be accessed after entering Ready phase (current phase: %s)", phase)
}
