package terminal

import "errors"

var (
	// ErrBusy is returned while another command or the boot sequence is running.
	ErrBusy = errors.New("terminal busy")
	// ErrSealed is returned for any command after the node unlocked or locked.
	ErrSealed = errors.New("terminal sealed")
	// ErrUsage is returned when a command is missing arguments.
	ErrUsage = errors.New("invalid command usage")
	// ErrUnknownCommand is returned for verbs not available in the current phase.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrRejected is returned when the authority refused a login or a submission.
	ErrRejected = errors.New("rejected by authority")
)
