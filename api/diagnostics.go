package api

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Severity grades a diagnostic.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one non-fatal problem found while importing.
type Diagnostic struct {
	Severity Severity
	Kind     error // Err* sentinel
	Node     uuid.UUID
	Path     string
	Line     int
	Message  string
	Err      error
}

func (d Diagnostic) String() string {
	loc := d.Path
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.Path, d.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, KindName(d.Kind), d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, KindName(d.Kind), loc, d.Message)
}

// Diagnostics accumulates problems in discovery order. It is not safe for
// concurrent use; concurrent producers hand their errors back to one owner.
type Diagnostics []Diagnostic

// Add records err with the given severity. Location and node are taken from
// an *Error when present.
func (d *Diagnostics) Add(sev Severity, err error) {
	if err == nil {
		return
	}
	diag := Diagnostic{
		Severity: sev,
		Kind:     KindOf(err),
		Message:  err.Error(),
		Err:      err,
	}
	var e *Error
	if errors.As(err, &e) {
		diag.Node = e.Node
		diag.Path = e.Path
		diag.Line = e.Line
		// Location is rendered separately by String.
		diag.Message = (&Error{Kind: e.Kind, Op: e.Op, Err: e.Err}).Error()
	}
	*d = append(*d, diag)
}

// Warn records err as a warning.
func (d *Diagnostics) Warn(err error) { d.Add(SeverityWarning, err) }

// Error records err as an error.
func (d *Diagnostics) Error(err error) { d.Add(SeverityError, err) }

// Append merges other into d.
func (d *Diagnostics) Append(other Diagnostics) {
	*d = append(*d, other...)
}

// Count returns how many diagnostics are of the given kind.
func (d Diagnostics) Count(kind error) int {
	n := 0
	for _, x := range d {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns diagnostics of the given kind.
func (d Diagnostics) Filter(kind error) Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.Kind == kind {
			out = append(out, x)
		}
	}
	return out
}

// ForNode returns diagnostics attributed to node id.
func (d Diagnostics) ForNode(id uuid.UUID) Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.Node == id {
			out = append(out, x)
		}
	}
	return out
}

// HasErrors reports whether any diagnostic has error severity.
func (d Diagnostics) HasErrors() bool {
	for _, x := range d {
		if x.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err combines all diagnostics into a single error, nil when empty.
func (d Diagnostics) Err() error {
	var err error
	for _, x := range d {
		if x.Err != nil {
			err = multierr.Append(err, x.Err)
		} else {
			err = multierr.Append(err, errors.New(x.Message))
		}
	}
	return err
}
