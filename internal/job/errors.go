package job

import (
	"errors"

	"github.com/fmueller/voxserve/internal/source"
)

var (
	ErrValidation = errors.New("invalid job")
	ErrInputType  = errors.New("`input` must be an object")
)

// InferenceError wraps a pipeline failure without altering its message.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }

// Kind names the error class reported to the platform. It returns "" for nil.
func Kind(err error) string {
	var inference *InferenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputType):
		return "TypeError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, source.ErrMissingInput):
		return "MissingInputError"
	case errors.Is(err, source.ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, source.ErrFetch):
		return "FetchError"
	case errors.Is(err, source.ErrDecode):
		return "DecodeError"
	case errors.As(err, &inference):
		return "InferenceError"
	default:
		return "InternalError"
	}
}
