package resilience

// Outcome is the path a resilient call took.
type Outcome int

const (
	// Success means the vendor answered and the answer was accepted.
	Success Outcome = iota
	// FallbackUsed means the vendor was skipped or kept failing and the
	// configured default payload was substituted.
	FallbackUsed
	// Rejected means the vendor answered with an explicit business "no".
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case FallbackUsed:
		return "FALLBACK_USED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Result is what a Caller hands back. It never carries a fault the caller is
// expected to handle: Cause is informational only.
type Result[T any] struct {
	// Value is the vendor payload on Success and Rejected (when the vendor
	// sent one), and the fallback payload on FallbackUsed.
	Value   T
	Outcome Outcome
	// Reason is set on Rejected.
	Reason string
	// Attempts counts outbound attempts actually made. Zero when the circuit
	// short-circuited the first attempt.
	Attempts int
	// Cause is the last underlying error, if any.
	Cause error
}

func (r Result[T]) Succeeded() bool { return r.Outcome == Success }

func (r Result[T]) Degraded() bool { return r.Outcome == FallbackUsed }

func (r Result[T]) IsRejected() bool { return r.Outcome == Rejected }
