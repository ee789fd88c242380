package media

import (
	"errors"
	"fmt"
)

var (
	ErrNoDevice         = errors.New("no capture device")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// AcquisitionError reports why local capture could not be started. It is the
// only call error surfaced to the user, because it blocks entry into the call.
type AcquisitionError struct {
	Kind   string // "audio", "video", or empty when no source was requested
	Source string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("acquire local media: %v", e.Err)
	}
	return fmt.Sprintf("acquire local %s from %s: %v", e.Kind, e.Source, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
