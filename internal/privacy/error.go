package privacy

// SanitizedError keeps the original error for errors.Is and errors.As but
// prints a scrubbed message.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string { return e.sanitizedMsg }

func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError returns err with a scrubbed message, or nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{original: err, sanitizedMsg: ScrubMessage(err.Error())}
}
