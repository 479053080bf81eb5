package calib

import (
	"fmt"

	"camcal/pkg/geometry"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrCancelled is returned when a run ends because a stop was requested.
	ErrCancelled = pkgerrors.New("calibration cancelled")

	// ErrSessionBusy is returned when session inputs are changed during a run.
	ErrSessionBusy = pkgerrors.New("session is running a calibration")

	// ErrNoResult is returned when calibration data is requested but none exists.
	ErrNoResult = pkgerrors.New("no calibration data available")
)

// InputError reports invalid run inputs. It is raised before any work starts.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ResolutionMismatchError reports an image whose size differs from the
// reference resolution of the run.
type ResolutionMismatchError struct {
	File     string
	Expected geometry.Size
	Actual   geometry.Size
}

func (e *ResolutionMismatchError) Error() string {
	return fmt.Sprintf("image %s has the wrong size for the calibration: expected %s, got %s",
		e.File, e.Expected, e.Actual)
}

// ImageReadError reports an image that could not be decoded.
type ImageReadError struct {
	File string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("read image %s: %v", e.File, e.Err)
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// RefinementFailure reports a failed subpixel refinement. The engine absorbs it
// by marking the image as not found.
type RefinementFailure struct {
	File string
	Err  error
}

func (e *RefinementFailure) Error() string {
	return fmt.Sprintf("refine corners of %s: %v", e.File, e.Err)
}

func (e *RefinementFailure) Unwrap() error { return e.Err }

// SolveError reports a failed aggregate solve.
type SolveError struct {
	Err error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("calibration solve failed: %v", e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

// ConcurrentRunError is returned when a run is started while another is active.
type ConcurrentRunError struct{}

func (e *ConcurrentRunError) Error() string {
	return "a calibration run is already active"
}

// CancelledError reports a run that ended on a stop request. It matches
// ErrCancelled with errors.Is.
type CancelledError struct {
	Processed int // images fully processed before the stop was seen
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("calibration cancelled after %d images", e.Processed)
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }
