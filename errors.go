package conductor

import "errors"

var (
	// Request errors, returned synchronously by the lifecycle manager.
	ErrValidation       = errors.New("conductor: validation failed")
	ErrUnsupportedType  = errors.New("conductor: unsupported job type")
	ErrAccessDenied     = errors.New("conductor: workspace access denied")
	ErrPermissionDenied = errors.New("conductor: permission denied")
	ErrNotFound         = errors.New("conductor: job not found")
	ErrIllegalState     = errors.New("conductor: illegal state transition")
	ErrQuotaExceeded    = errors.New("conductor: workspace quota exceeded")

	// Store errors.
	ErrNoStore          = errors.New("conductor: no store configured")
	ErrJobAlreadyExists = errors.New("conductor: job already exists")

	// Execution errors. These never reach the job creator; they drive the
	// retry state machine.
	ErrTransient = errors.New("conductor: transient execution failure")
	ErrTimeout   = errors.New("conductor: attempt timed out")
	ErrPermanent = errors.New("conductor: permanent execution failure")

	// ErrQueueInitialization is fatal: the engine must not serve traffic.
	ErrQueueInitialization = errors.New("conductor: queue initialization failed")
)

// permanentError marks a handler error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent wraps err so the retry engine routes the job straight to
// dead-letter. A nil err yields nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was classified as non-retryable.
// Unclassified errors and timeouts are transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
