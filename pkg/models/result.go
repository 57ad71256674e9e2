package models

// Outcome names what the recorder did with a visit.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRejected Outcome = "rejected"
)

// RecordResult is the structured outcome of a record attempt. Failures are
// returned as data, never raised past the recorder boundary.
type RecordResult struct {
	Outcome Outcome `json:"outcome"`
	Visit   *Visit  `json:"visit,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Err     error   `json:"-"`
}

func Inserted(v *Visit) RecordResult {
	return RecordResult{Outcome: OutcomeInserted, Visit: v}
}

func Skipped(v *Visit) RecordResult {
	return RecordResult{Outcome: OutcomeSkipped, Visit: v}
}

func Rejected(reason string, err error) RecordResult {
	return RecordResult{Outcome: OutcomeRejected, Reason: reason, Err: err}
}
