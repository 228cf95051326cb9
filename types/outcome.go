package types

// Outcome is the result of running the deletion executor on a record
type Outcome string

const (
	// OutcomeSimulated - dry run, no remote call made
	OutcomeSimulated Outcome = "simulated"
	// OutcomeDeleted - remote delete succeeded
	OutcomeDeleted Outcome = "deleted"
	// OutcomeFailed - remote delete failed, failure was logged and swallowed
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped - record's age could not be evaluated, no call made
	OutcomeSkipped Outcome = "skipped"
)

// IsDestructive reports whether this outcome changed remote state
func (o Outcome) IsDestructive() bool {
	return o == OutcomeDeleted
}
