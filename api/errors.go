package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error kinds. Every classified failure unwraps to exactly one of these.
var (
	// ErrFormat means the byte stream is not a recognizable archive.
	ErrFormat = errors.New("not a recognizable archive")
	// ErrSchema means the root element or namespace does not match the expected format.
	ErrSchema = errors.New("schema mismatch")
	// ErrVersion means the declared schema version is newer than supported.
	// It is recoverable: parsing continues with best-effort defaults.
	ErrVersion = errors.New("unsupported schema version")
	// ErrReference means a parent or cross-document reference does not resolve.
	ErrReference = errors.New("unresolved reference")
	// ErrValue means a scalar field could not be parsed.
	ErrValue = errors.New("malformed value")
	// ErrGeometry means a geometry payload could not be decoded.
	ErrGeometry = errors.New("geometry decode failed")
	// ErrNotFound means an archive entry or graph node is absent.
	ErrNotFound = errors.New("not found")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrFormat, "format"},
	{ErrSchema, "schema"},
	{ErrVersion, "version"},
	{ErrReference, "reference"},
	{ErrValue, "value"},
	{ErrGeometry, "geometry"},
	{ErrNotFound, "not-found"},
}

// Error carries the classification and location of a failure.
type Error struct {
	Kind error     // one of the Err* sentinels
	Op   string    // operation that failed, e.g. "parse matrix"
	Path string    // archive entry or element path
	Line int       // 1-based line in the XML descriptor, 0 if unknown
	Node uuid.UUID // owning node, zero if not node-local
	Err  error     // underlying cause, may be nil
}

// NewError builds a classified error.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// At returns a copy of e located at path and line.
func (e *Error) At(path string, line int) *Error {
	c := *e
	c.Path = path
	c.Line = line
	return &c
}

// For returns a copy of e attributed to node id.
func (e *Error) For(id uuid.UUID) *Error {
	c := *e
	c.Node = id
	return &c
}

// KindOf returns the sentinel kind err unwraps to, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// KindName returns a short stable name for an error kind ("value", "reference", ...).
func KindName(kind error) string {
	for _, k := range kinds {
		if k.err == kind {
			return k.name
		}
	}
	return "other"
}
