package core

import "piobroker/errcode"

// Errors returned by the broker and the PIO controller. They are errcode
// values so the console can report them by name.
const (
	ErrAlreadyCheckedOut = errcode.AlreadyCheckedOut
	ErrAlreadyPresent    = errcode.AlreadyPresent
	ErrResourceMismatch  = errcode.ResourceMismatch
	ErrUnknownResource   = errcode.UnknownResource
	ErrNoFreePIO         = errcode.NoFreePIO
	ErrPeripheralsTaken  = errcode.PeripheralsTaken

	ErrTooManyStateMachinesRequested = errcode.TooManyStateMachinesRequested
	ErrBadStateMachineProgramming    = errcode.BadStateMachineProgramming
	ErrProgramTooLarge               = errcode.ProgramTooLarge
	ErrProgrammingFailed             = errcode.ProgrammingFailed
	ErrFailedToStart                 = errcode.FailedToStart
	ErrFailedToStop                  = errcode.FailedToStop
	ErrNoProgramToUninstall          = errcode.NoProgramToUninstall
)
