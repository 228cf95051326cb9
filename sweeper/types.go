package sweeper

import (
	"sync"
	"time"

	"github.com/yairfalse/siivo/types"
)

// ListingError records one cloud/kind listing that failed and was
// skipped
type ListingError struct {
	Cloud string     `json:"cloud"`
	Kind  types.Kind `json:"kind"`
	Err   string     `json:"error"`
}

// Result aggregates one sweep run. Counters are per record; a record
// lands in exactly one of Protected, Skipped, or the executor buckets.
type Result struct {
	mu sync.Mutex

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Scanned   int `json:"scanned"`
	Eligible  int `json:"eligible"`
	Deleted   int `json:"deleted"`
	Simulated int `json:"simulated"`
	Protected int `json:"protected"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	ListingErrors []ListingError `json:"listing_errors,omitempty"`
}

// HadErrors reports whether the run should exit non-zero
func (r *Result) HadErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed > 0 || len(r.ListingErrors) > 0
}

func (r *Result) addScanned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scanned++
}

func (r *Result) addEligible() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Eligible++
}

func (r *Result) addProtected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Protected++
}

func (r *Result) addOutcome(outcome types.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case types.OutcomeDeleted:
		r.Deleted++
	case types.OutcomeSimulated:
		r.Simulated++
	case types.OutcomeFailed:
		r.Failed++
	case types.OutcomeSkipped:
		r.Skipped++
	}
}

func (r *Result) addListingError(cloud string, kind types.Kind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListingErrors = append(r.ListingErrors, ListingError{
		Cloud: cloud,
		Kind:  kind,
		Err:   err.Error(),
	})
}
