package inference

import (
	"fmt"

	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
)

// Client-facing messages.
const (
	MsgNoImage         = "No image provided"
	MsgInternalFailure = "Internal error while analyzing image"
	MsgTimeout         = "Request timed out"
)

// ErrTimeout is returned by ClassifyContext when the caller's deadline
// expires before the pipeline finishes.
var ErrTimeout = errors.NewStd("classification timed out")

// InputError is a client-correctable failure: no image, an oversize upload
// or bytes that do not decode. Message is safe to return to the caller.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// InferenceError is a server-side failure after the image decoded. Its
// detail is for logs only; callers see MsgInternalFailure.
type InferenceError struct {
	Stage Stage
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed during %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// StartupError means the model could not be loaded. The process must not
// serve requests after one.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("model startup failed: %v", e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// IsInputError reports whether err is client-correctable.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsInferenceError reports whether err is a server-side pipeline failure.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

func newInputError(message string, cause error) *InputError {
	var enhanced error
	if cause != nil {
		enhanced = errors.New(cause).
			Component("inference").
			Category(errors.CategoryInput).
			Build()
	}
	return &InputError{Message: message, Err: enhanced}
}

func newLimitError(limit int64) *InputError {
	return &InputError{
		Message: fmt.Sprintf("Image exceeds the maximum upload size of %d bytes", limit),
		Err: errors.Newf("upload exceeds %d bytes", limit).
			Component("inference").
			Category(errors.CategoryLimit).
			Build(),
	}
}

func newTimeoutError(cause error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrTimeout, cause)).
		Component("inference").
		Category(errors.CategoryTimeout).
		Build()
}

func newInferenceError(stage Stage, cause error) *InferenceError {
	return &InferenceError{
		Stage: stage,
		Err: errors.New(cause).
			Component("inference").
			Category(errors.CategoryInference).
			Priority(errors.PriorityHigh).
			Context("operation", string(stage)).
			Build(),
	}
}

// decodeMessage describes a decode failure without echoing library
// internals beyond the reason.
func decodeMessage(err error) string {
	switch {
	case errors.Is(err, imaging.ErrEmptyImage):
		return MsgNoImage
	case errors.Is(err, imaging.ErrUnknownFormat):
		return "Unsupported or unrecognised image format"
	case errors.Is(err, imaging.ErrTooManyPixels):
		return "Image dimensions exceed the allowed maximum"
	case errors.Is(err, imaging.ErrZeroSize):
		return "Image has zero width or height"
	default:
		var de *imaging.DecodeError
		if errors.As(err, &de) && de.Format != "" {
			return fmt.Sprintf("Invalid or corrupt %s image", de.Format)
		}
		return "Invalid or corrupt image"
	}
}
