package capture

import (
	"errors"
	"fmt"
)

// ErrCapabilityDenied is returned (wrapped) by providers when the platform
// refuses location access.
var ErrCapabilityDenied = errors.New("location capability denied")

// ErrAlreadyRunning is returned by Start when capture is not Stopped.
var ErrAlreadyRunning = errors.New("capture already running")

// CapabilityError reports that capture cannot run on this device.
type CapabilityError struct {
	Provider string
	Err      error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Provider, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Is matches ErrCapabilityDenied even when the provider returned a
// different cause.
func (e *CapabilityError) Is(target error) bool { return target == ErrCapabilityDenied }
