// Package loomerr classifies the error kinds the runtime substrate can
// surface. Conflict, FailSafe, and Break are control-flow signals
// recovered inside pkg/exec and must never escape a loop call site;
// Fatal and OSResource abort the process after logging.
package loomerr

import (
	"fmt"

	"github.com/loom-run/loom/pkg/logging"
)

// Kind classifies an error for resilience handling: control-flow signals
// versus process-ending failures.
type Kind int

const (
	// Conflict is a speculative acquire that raced with another context.
	// Always recovered locally by the executor; never surfaces past
	// ForEach.
	Conflict Kind = iota
	// FailSafe signals the operator reached a safe point and wants to
	// stop without being considered failed.
	FailSafe
	// Break is a cooperative early-exit request (parallel_break).
	Break
	// Fatal is a programming error: double init, re-entrant Run,
	// releasing an unowned lock, invalid allocator arguments.
	Fatal
	// OSResource is a failure to obtain a resource from the OS, e.g.
	// page allocation.
	OSResource
)

func (k Kind) String() string {
	switch k {
	case Conflict:
		return "Conflict"
	case FailSafe:
		return "FailSafe"
	case Break:
		return "Break"
	case Fatal:
		return "Fatal"
	case OSResource:
		return "OSResource"
	default:
		return "Unknown"
	}
}

// Classified wraps an underlying error with its Kind and the component
// that raised it.
type Classified struct {
	Kind      Kind
	Component string
	Err       error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("[%s:%s] %v", c.Component, c.Kind, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

// New constructs a Classified error.
func New(kind Kind, component string, err error) *Classified {
	return &Classified{Kind: kind, Component: component, Err: err}
}

// Newf constructs a Classified error from a format string.
func Newf(kind Kind, component, format string, args ...any) *Classified {
	return &Classified{Kind: kind, Component: component, Err: fmt.Errorf(format, args...)}
}

// IsControlFlow reports whether err is one of Conflict, FailSafe, or Break
// — the three kinds interpreted by the executor and never surfaced past a
// loop call site.
func IsControlFlow(err error) bool {
	c, ok := err.(*Classified)
	if !ok {
		return false
	}
	switch c.Kind {
	case Conflict, FailSafe, Break:
		return true
	default:
		return false
	}
}

// Abort logs err as fatal and terminates the process. Call only for Fatal
// and OSResource classes: these two kinds have no usable fallback.
func Abort(component string, err error) {
	logging.Component(component).Fatal("aborting: fatal error", logging.Fields{"error": err.Error()})
}
