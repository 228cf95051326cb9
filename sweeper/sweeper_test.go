package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/siivo/executor"
	"github.com/yairfalse/siivo/policy"
	"github.com/yairfalse/siivo/providers"
	"github.com/yairfalse/siivo/retention"
	"github.com/yairfalse/siivo/telemetry"
	"github.com/yairfalse/siivo/types"
)

const day = 24 * time.Hour

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) string {
	return testNow.Add(-d).Format(time.RFC3339)
}

func volume(id, nickname string, age time.Duration) types.Record {
	return types.Record{
		ID:        id,
		ManagedID: "region-a/" + id,
		Kind:      types.KindVolume,
		Cloud:     "region-a",
		Region:    "region-a",
		Status:    types.StatusAvailable,
		Nickname:  nickname,
		CreatedAt: ago(age),
	}
}

func snapshot(id, nickname string, age time.Duration) types.Record {
	return types.Record{
		ID:        id,
		ManagedID: "region-a/" + id,
		Kind:      types.KindSnapshot,
		Cloud:     "region-a",
		Region:    "region-a",
		Nickname:  nickname,
		CreatedAt: ago(age),
	}
}

func newTestSweeper(mock *providers.Mock, dryRun bool) *Sweeper {
	filter := retention.New(7*day, 30*day, nil, false)
	exec := executor.New(mock, dryRun, telemetry.NewLogger("test"))
	return New(mock, filter, exec).WithClock(func() time.Time { return testNow })
}

func oneCloud() []types.Cloud {
	return []types.Cloud{{ID: "region-a", Name: "region-a", SupportsVolumes: true, SupportsSnapshots: true}}
}

func TestRun_DeletesStaleUnprotectedVolume(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{volume("vol-1", "temp-vol", 10*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Eligible)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"vol-1"}, mock.DeletedIDs())
	assert.False(t, result.HadErrors())
}

func TestRun_DryRunSimulatesWithoutDeleting(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{volume("vol-1", "temp-vol", 10*day)}

	result, err := newTestSweeper(mock, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Simulated)
	assert.Equal(t, 0, result.Deleted)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_SafeWordProtectsVolume(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{volume("vol-1", "SAVE-this-temp-vol", 10*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Protected)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_BaseImageSnapshotKeptDespiteAge(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Snapshots["region-a"] = []types.Record{snapshot("snap-1", "ubuntu-14.04-base", 400*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Protected)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_UpdatedAtFallbackTooYoung(t *testing.T) {
	rec := volume("vol-1", "temp-vol", 0)
	rec.CreatedAt = ""
	rec.UpdatedAt = ago(5 * day)

	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{rec}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Protected)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_UnparseableRecordSkippedRunContinues(t *testing.T) {
	broken := volume("vol-1", "temp-vol", 0)
	broken.CreatedAt = ""
	broken.UpdatedAt = ""

	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{broken, volume("vol-2", "temp-vol", 10*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"vol-2"}, mock.DeletedIDs())
}

func TestRun_DeleteFailureDoesNotBlockNextRecord(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{
		volume("vol-1", "temp-a", 10*day),
		volume("vol-2", "temp-b", 10*day),
	}
	mock.DeleteErr["vol-1"] = errors.New("network error")

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"vol-2"}, mock.DeletedIDs())
	assert.True(t, result.HadErrors())
}

func TestRun_ListingFailureSkipsCloudKindAndContinues(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.ListErr["region-a/volume"] = errors.New("api unavailable")
	mock.Snapshots["region-a"] = []types.Record{snapshot("snap-1", "old-backup", 60*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.ListingErrors, 1)
	assert.Equal(t, "region-a", result.ListingErrors[0].Cloud)
	assert.Equal(t, types.KindVolume, result.ListingErrors[0].Kind)
	assert.Equal(t, 1, result.Deleted)
	assert.True(t, result.HadErrors())
}

func TestRun_CapabilityMarkersGateKinds(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = []types.Cloud{{ID: "region-a", SupportsVolumes: true, SupportsSnapshots: false}}
	mock.Volumes["region-a"] = []types.Record{volume("vol-1", "temp-vol", 10*day)}
	mock.Snapshots["region-a"] = []types.Record{snapshot("snap-1", "old-backup", 60*day)}

	result, err := newTestSweeper(mock, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, []string{"vol-1"}, mock.DeletedIDs())
}

func TestRun_PolicyEngineProtectsEligibleRecord(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Snapshots["region-a"] = []types.Record{snapshot("snap-1", "golden-db-image", 60*day)}

	engine := policy.NewEngine()
	require.NoError(t, engine.LoadPolicy(context.Background(), "golden.rego", `package siivo

protect if startswith(input.record.nickname, "golden-")
`))

	s := newTestSweeper(mock, false).WithPolicyEngine(engine)
	result, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Protected)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_AgeUsesInstantCapturedAtStart(t *testing.T) {
	// 6 days old against the first clock reading: under the 7-day
	// threshold. Every later reading jumps forward 3 days, so any
	// re-read of the clock during record processing would make the
	// volume look stale and get it deleted.
	mock := providers.NewMock()
	mock.Clouds = oneCloud()
	mock.Volumes["region-a"] = []types.Record{volume("vol-1", "temp-vol", 6*day)}

	calls := 0
	advancing := func() time.Time {
		now := testNow.Add(time.Duration(calls) * 3 * day)
		calls++
		return now
	}

	filter := retention.New(7*day, 30*day, nil, false)
	exec := executor.New(mock, false, telemetry.NewLogger("test"))
	result, err := New(mock, filter, exec).WithClock(advancing).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Protected)
	assert.Empty(t, mock.DeletedIDs())
}

func TestRun_ConcurrentFanOutMergesCounts(t *testing.T) {
	mock := providers.NewMock()
	mock.Clouds = []types.Cloud{
		{ID: "region-a", SupportsVolumes: true},
		{ID: "region-b", SupportsVolumes: true},
		{ID: "region-c", SupportsVolumes: true},
	}
	for _, region := range []string{"region-a", "region-b", "region-c"} {
		rec := volume("vol-"+region, "temp-vol", 10*day)
		rec.Cloud, rec.Region = region, region
		mock.Volumes[region] = []types.Record{rec}
	}

	result, err := newTestSweeper(mock, false).WithWorkers(3).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 3, result.Deleted)
	assert.Len(t, mock.DeletedIDs(), 3)
}
