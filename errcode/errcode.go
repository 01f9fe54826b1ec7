package errcode

import "errors"

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Fdt           Code = "fdt"     // device tree shape problem
	Unknown       Code = "unknown" // opaque probe callback failure
	Busy          Code = "busy"
	NotFound      Code = "not_found"
	InvalidParams Code = "invalid_params"
	Unsupported   Code = "unsupported"
	Timeout       Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause next to a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Fdt) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// FdtErr reports a device tree shape problem for op.
func FdtErr(op, msg string) error {
	return &E{C: Fdt, Op: op, Msg: msg}
}

// UnknownErr wraps a probe callback failure. A nil err yields nil.
func UnknownErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: Unknown, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
