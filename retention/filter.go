package retention

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yairfalse/siivo/types"
)

// DefaultSafeWords protect a record when any of them appears as a
// case-insensitive substring of its nickname or description
var DefaultSafeWords = []string{"save", "install", "do_not", "do not", "media"}

// baseImagePattern protects snapshots whose nickname starts like an
// OS base image. Anchored at the start of the nickname only.
var baseImagePattern = regexp.MustCompile(`(?i)^(ubuntu|centos|base_image)`)

// Verdict is the filter's answer for one record
type Verdict struct {
	Eligible bool
	Reason   string
}

// Filter is the retention predicate. Construct once, evaluate many
// times; Evaluate has no hidden state and is safe for concurrent use.
type Filter struct {
	volumeMinAge   time.Duration
	snapshotMinAge time.Duration
	safeWords      []string
	checkTags      bool
}

// New creates a Filter. extraSafeWords are added to DefaultSafeWords;
// checkTags extends safe-word matching to tag keys and values.
func New(volumeMinAge, snapshotMinAge time.Duration, extraSafeWords []string, checkTags bool) *Filter {
	words := make([]string, 0, len(DefaultSafeWords)+len(extraSafeWords))
	for _, w := range DefaultSafeWords {
		words = append(words, strings.ToLower(w))
	}
	for _, w := range extraSafeWords {
		words = append(words, strings.ToLower(w))
	}

	return &Filter{
		volumeMinAge:   volumeMinAge,
		snapshotMinAge: snapshotMinAge,
		safeWords:      words,
		checkTags:      checkTags,
	}
}

// Evaluate decides whether a record of the given age may be deleted
func (f *Filter) Evaluate(rec types.Record, age time.Duration) Verdict {
	minAge := f.minAgeFor(rec.Kind)
	if age < minAge {
		return Verdict{Reason: fmt.Sprintf("too young: %.1fh old, threshold %.1fh", age.Hours(), minAge.Hours())}
	}

	if rec.Kind == types.KindVolume && rec.Status != types.StatusAvailable {
		return Verdict{Reason: fmt.Sprintf("volume in use: status %q", rec.Status)}
	}

	if word := f.matchSafeWord(rec); word != "" {
		return Verdict{Reason: fmt.Sprintf("protected by safe word %q", word)}
	}

	if rec.Kind == types.KindSnapshot && baseImagePattern.MatchString(rec.Nickname) {
		return Verdict{Reason: "base image snapshot"}
	}

	return Verdict{Eligible: true, Reason: "stale and unprotected"}
}

func (f *Filter) minAgeFor(kind types.Kind) time.Duration {
	if kind == types.KindSnapshot {
		return f.snapshotMinAge
	}
	return f.volumeMinAge
}

// matchSafeWord returns the first safe word found in the record's
// nickname or description (and tags, when enabled), or empty string.
// Substring match, not whole-word; absent fields never match.
func (f *Filter) matchSafeWord(rec types.Record) string {
	nickname := strings.ToLower(rec.Nickname)
	description := strings.ToLower(rec.Description)

	for _, word := range f.safeWords {
		if strings.Contains(nickname, word) || strings.Contains(description, word) {
			return word
		}
	}

	if !f.checkTags {
		return ""
	}

	for key, value := range rec.Tags {
		key, value = strings.ToLower(key), strings.ToLower(value)
		for _, word := range f.safeWords {
			if strings.Contains(key, word) || strings.Contains(value, word) {
				return word
			}
		}
	}

	return ""
}
