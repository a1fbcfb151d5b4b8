package pairing

import (
	"errors"
	"fmt"
)

var ErrUnknownDevice = errors.New("unknown device")

// NotReadyError reports a device that cannot take work right now.
type NotReadyError struct {
	Serial string
	Reason string
}

func (e *NotReadyError) Error() string {
	if e.Serial == "" {
		return fmt.Sprintf("not ready: %s", e.Reason)
	}
	return fmt.Sprintf("%s not ready: %s", e.Serial, e.Reason)
}

// IsNotReady reports whether err is or wraps a NotReadyError.
func IsNotReady(err error) bool {
	var nr *NotReadyError
	return errors.As(err, &nr)
}
