package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainBooting means the surface has no extent yet; the rebuild is
	// retried on a later frame.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	// ErrFatal marks an error that must abort the frame loop.
	ErrFatal = errors.New("fatal renderer error")
	// ErrRebuildRequired signals a stale or suboptimal presentation surface.
	// It is consumed by the renderer and never returned from DrawFrame.
	ErrRebuildRequired = errors.New("presentation surface out of date, rebuild required")
	// ErrNoSupportedFormat is returned when none of the depth candidates
	// can back a depth-stencil attachment.
	ErrNoSupportedFormat = errors.New("no supported depth format")
	ErrDeviceLost        = errors.New("device lost")
	ErrNotInitialized    = errors.New("renderer not initialized")
)

// Fatal marks err as unrecoverable. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatal)
}

// Fatalf builds a new fatal error.
func Fatalf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrFatal)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
