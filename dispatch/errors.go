package dispatch

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrClosed reports use of a dispatcher after Close.
var ErrClosed = eris.New("dispatcher closed")

// AccessViolationError reports a storage request outside the system's
// declared access set. It surfaces either at registration, when a declared
// slot does not exist, or at run time wrapped in a FaultError.
type AccessViolationError struct {
	System string
	Slot   string
	Mode   string
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("system %q has no %s access to %q", e.System, e.Mode, e.Slot)
}

// FaultError carries the first failure of a dispatch round: the system's
// returned error or its recovered panic. Stages after the faulting one do
// not run.
type FaultError struct {
	System string
	Stage  int
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("system %q faulted in stage %d: %v", e.System, e.Stage, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
