package resilience

import "errors"

// RejectionError marks an explicit business rejection from a vendor. It is
// never retried.
type RejectionError struct {
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Err }

// Reject returns a business rejection with the given reason.
func Reject(reason string) error {
	return &RejectionError{Reason: reason}
}

// RejectWithCause is Reject with an underlying error kept for errors.Is/As.
func RejectWithCause(reason string, cause error) error {
	return &RejectionError{Reason: reason, Err: cause}
}

// AsRejection unwraps err to a *RejectionError.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func IsRejection(err error) bool {
	_, ok := AsRejection(err)
	return ok
}

// PermanentError is a vendor fault that repeating the request cannot fix,
// such as a 4xx answer to a malformed or unauthorised request. It is not a
// verdict: the call ends without retry and falls back.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// DefaultRetryable treats everything except business rejections and
// permanent faults as transient: timeouts, connection errors and 5xx answers.
func DefaultRetryable(err error) bool {
	return err != nil && !IsRejection(err) && !IsPermanent(err)
}
