// Package errcode defines the stable error identifiers reported by the broker,
// the PIO controller and the USB console.
package errcode

// Code is a stable, wire-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes.
const (
	OK Code = "ok"

	// Resource contention
	AlreadyCheckedOut Code = "already_checked_out"
	AlreadyPresent    Code = "already_present"
	ResourceMismatch  Code = "resource_mismatch"
	UnknownResource   Code = "unknown_resource"
	NoFreePIO         Code = "no_free_pio"

	// Configuration
	TooManyStateMachinesRequested Code = "too_many_state_machines"
	BadStateMachineProgramming    Code = "bad_sm_programming"
	ProgramTooLarge               Code = "program_too_large"

	// Lifecycle transitions
	ProgrammingFailed    Code = "programming_failed"
	FailedToStart        Code = "failed_to_start"
	FailedToStop         Code = "failed_to_stop"
	NoProgramToUninstall Code = "no_program_to_uninstall"

	// Startup
	PeripheralsTaken Code = "peripherals_taken"

	// Console / transport
	InvalidParams Code = "invalid_params"
	NotCheckedOut Code = "not_checked_out"
	FIFOFull      Code = "fifo_full"

	Error Code = "error" // generic fallback
)

// E carries a Code together with the failing operation and an optional cause.
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

// Is lets errors.Is(err, code) match a wrapped Code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap attaches an operation name and cause to a code.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
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
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	// errors.Join results: report the first coded cause.
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if c := Of(e); c != Error {
				return c
			}
		}
	}
	return Error
}
