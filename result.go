package x402

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeOK means the operation succeeded.
	OutcomeOK Outcome = iota
	// OutcomeInvalid is an expected, reportable failure: the payment must be rebuilt.
	OutcomeInvalid
	// OutcomeConflict is a failure caused by a duplicate or replayed submission.
	OutcomeConflict
	// OutcomeFault is an unexpected failure of the facilitator or its transport.
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of verify and settle.
// Value is populated for every outcome except OutcomeFault; Err only for OutcomeFault.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Reason  string
	Err     error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Outcome: OutcomeOK, Value: value}
}

// Invalid wraps an expected failure with its reason.
func Invalid[T any](value T, reason string) Result[T] {
	return Result[T]{Outcome: OutcomeInvalid, Value: value, Reason: reason}
}

// Conflict wraps a duplicate-submission failure with its reason.
func Conflict[T any](value T, reason string) Result[T] {
	return Result[T]{Outcome: OutcomeConflict, Value: value, Reason: reason}
}

// Fault wraps an unexpected error.
func Fault[T any](err error) Result[T] {
	r := Result[T]{Outcome: OutcomeFault, Err: err}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// IsOK reports whether the result is OutcomeOK.
func (r Result[T]) IsOK() bool {
	return r.Outcome == OutcomeOK
}
