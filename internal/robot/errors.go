package robot

import (
	"errors"
	"fmt"
)

// ErrRobot is the root of every robot-level failure.
var ErrRobot = errors.New("robot error")

// ErrUnsupportedDevice marks a robot whose house-cleaning service version is
// missing or unknown. It is permanent: retrying will not help.
var ErrUnsupportedDevice = fmt.Errorf("%w: service houseCleaning is not supported by your robot", ErrRobot)

// CommunicationError covers connection failures, timeouts, non-2xx replies
// and bodies that are not JSON objects.
type CommunicationError struct {
	Serial  string
	Command string
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("unable to communicate with robot %s (%s): %v", e.Serial, e.Command, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrRobot }
