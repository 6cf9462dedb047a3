package media

import (
	"errors"
	"fmt"
	"strings"
)

// Acquisition failures the user can act on. Anything else is wrapped
// as-is.
var (
	ErrPermissionDenied = errors.New("camera/microphone access denied")
	ErrDeviceNotFound   = errors.New("no camera or microphone found")
)

// classify maps driver errors onto the user-facing sentinels. The
// drivers report OS errors as strings, so matching is textual.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "failed to find the best driver"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "device not found"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("acquire media: %w", err)
	}
}
