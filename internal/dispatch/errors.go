package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when the registry has no device with the given id.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidCommand is returned for malformed commands. No request is sent.
	ErrInvalidCommand = errors.New("invalid command")
)

// CommandError is a command the backend did not confirm.
type CommandError struct {
	DeviceID string
	Command  CommandKind
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s on device %s failed: %v", e.Command, e.DeviceID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
