package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/siivo/types"
)

const (
	day       = 24 * time.Hour
	volumeAge = 7 * day
	snapAge   = 30 * day
)

func newTestFilter() *Filter {
	return New(volumeAge, snapAge, nil, false)
}

func availableVolume(nickname, description string) types.Record {
	return types.Record{
		ID:          "vol-123",
		ManagedID:   "us-east-1/vol-123",
		Kind:        types.KindVolume,
		Status:      types.StatusAvailable,
		Nickname:    nickname,
		Description: description,
	}
}

func snapshot(nickname string) types.Record {
	return types.Record{
		ID:        "snap-456",
		ManagedID: "us-east-1/snap-456",
		Kind:      types.KindSnapshot,
		Nickname:  nickname,
	}
}

func TestEvaluate_TooYoungIsNeverEligible(t *testing.T) {
	f := newTestFilter()

	// Even a perfect deletion candidate stays when under threshold
	v := f.Evaluate(availableVolume("temp-vol", ""), 5*day)
	assert.False(t, v.Eligible)
	assert.Contains(t, v.Reason, "too young")
}

func TestEvaluate_AgeGateUsesKindThreshold(t *testing.T) {
	f := newTestFilter()

	// 10 days clears the volume threshold but not the snapshot one
	assert.True(t, f.Evaluate(availableVolume("temp-vol", ""), 10*day).Eligible)
	assert.False(t, f.Evaluate(snapshot("temp-snap"), 10*day).Eligible)
	assert.True(t, f.Evaluate(snapshot("temp-snap"), 31*day).Eligible)
}

func TestEvaluate_VolumeInUseIsProtected(t *testing.T) {
	f := newTestFilter()

	rec := availableVolume("temp-vol", "")
	rec.Status = "in-use"

	v := f.Evaluate(rec, 100*day)
	assert.False(t, v.Eligible)
	assert.Contains(t, v.Reason, "in use")
}

func TestEvaluate_SnapshotHasNoStatusGate(t *testing.T) {
	f := newTestFilter()

	rec := snapshot("temp-snap")
	rec.Status = "pending"

	assert.True(t, f.Evaluate(rec, 60*day).Eligible)
}

func TestEvaluate_SafeWords(t *testing.T) {
	f := newTestFilter()

	tests := []struct {
		name        string
		nickname    string
		description string
		eligible    bool
	}{
		{"plain temp volume", "temp-vol", "", true},
		{"save in nickname", "save-this-vol", "", false},
		{"safe word is case insensitive", "SAVE-this-temp-vol", "", false},
		{"safe word as substring", "unsaveable", "", false},
		{"install in description", "temp-vol", "jenkins install scratch disk", false},
		{"do_not variant", "do_not_touch", "", false},
		{"do not with space", "x", "do not delete", false},
		{"media", "media-cache", "", false},
		{"empty fields never match", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Evaluate(availableVolume(tt.nickname, tt.description), 100*day)
			assert.Equal(t, tt.eligible, v.Eligible, "reason: %s", v.Reason)
		})
	}
}

func TestEvaluate_SafeWordsApplyToSnapshots(t *testing.T) {
	f := newTestFilter()

	rec := snapshot("keep-save-snap")
	v := f.Evaluate(rec, 100*day)
	assert.False(t, v.Eligible)
	assert.Contains(t, v.Reason, "safe word")
}

func TestEvaluate_BaseImageSnapshots(t *testing.T) {
	f := newTestFilter()

	tests := []struct {
		nickname string
		eligible bool
	}{
		{"ubuntu-14.04-base", false},
		{"Ubuntu-22.04", false},
		{"centos7-golden", false},
		{"base_image_v2", false},
		{"my-ubuntu-backup", true}, // anchored at start only
		{"app-data-snap", true},
	}

	for _, tt := range tests {
		t.Run(tt.nickname, func(t *testing.T) {
			v := f.Evaluate(snapshot(tt.nickname), 400*day)
			assert.Equal(t, tt.eligible, v.Eligible, "reason: %s", v.Reason)
		})
	}
}

func TestEvaluate_BaseImagePatternIgnoresVolumes(t *testing.T) {
	f := newTestFilter()

	rec := availableVolume("ubuntu-data", "")
	assert.True(t, f.Evaluate(rec, 100*day).Eligible)
}

func TestEvaluate_TagProtectionOffByDefault(t *testing.T) {
	f := newTestFilter()

	rec := availableVolume("temp-vol", "")
	rec.Tags = map[string]string{"retention": "save"}

	assert.True(t, f.Evaluate(rec, 100*day).Eligible)
}

func TestEvaluate_TagProtectionWhenEnabled(t *testing.T) {
	f := New(volumeAge, snapAge, nil, true)

	rec := availableVolume("temp-vol", "")
	rec.Tags = map[string]string{"retention": "SAVE"}

	v := f.Evaluate(rec, 100*day)
	assert.False(t, v.Eligible)
	assert.Contains(t, v.Reason, "safe word")

	// Tag keys are checked too
	rec.Tags = map[string]string{"do_not_delete": "yes"}
	assert.False(t, f.Evaluate(rec, 100*day).Eligible)
}

func TestEvaluate_ExtraSafeWords(t *testing.T) {
	f := New(volumeAge, snapAge, []string{"golden"}, false)

	assert.False(t, f.Evaluate(availableVolume("golden-master", ""), 100*day).Eligible)
	assert.False(t, f.Evaluate(availableVolume("save-me", ""), 100*day).Eligible)
}

func TestEvaluate_Idempotent(t *testing.T) {
	f := newTestFilter()
	rec := availableVolume("temp-vol", "")

	first := f.Evaluate(rec, 10*day)
	second := f.Evaluate(rec, 10*day)
	assert.Equal(t, first, second)
}
