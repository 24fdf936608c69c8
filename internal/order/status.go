package order

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusFraudCheckPassed Status = "FRAUD_CHECK_PASSED"
	StatusFraudCheckFailed Status = "FRAUD_CHECK_FAILED"
	StatusPaymentPending   Status = "PAYMENT_PENDING"
	StatusPaymentCompleted Status = "PAYMENT_COMPLETED"
	StatusPaymentFailed    Status = "PAYMENT_FAILED"
	StatusCancelled        Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusCreated: {
		StatusFraudCheckPassed: true,
		StatusFraudCheckFailed: true,
		StatusCancelled:        true,
	},
	StatusFraudCheckPassed: {
		StatusPaymentPending:   true,
		StatusPaymentCompleted: true,
		StatusPaymentFailed:    true,
		StatusCancelled:        true,
	},
	StatusPaymentPending: {
		StatusPaymentCompleted: true,
		StatusPaymentFailed:    true,
		StatusCancelled:        true,
	},
	StatusFraudCheckFailed: {},
	StatusPaymentCompleted: {},
	StatusPaymentFailed:    {},
	StatusCancelled:        {},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) String() string { return string(s) }

// Statuses lists every known status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusCreated,
		StatusFraudCheckPassed,
		StatusFraudCheckFailed,
		StatusPaymentPending,
		StatusPaymentCompleted,
		StatusPaymentFailed,
		StatusCancelled,
	}
}
