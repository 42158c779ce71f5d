package privacy

// SanitizedError reports a scrubbed message while keeping the original
// error available to errors.Is and errors.As.
type SanitizedError struct {
	original error
	message  string
}

func (e *SanitizedError) Error() string { return e.message }

func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError returns err with URLs in its message anonymized, or nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{original: err, message: ScrubMessage(err.Error())}
}
