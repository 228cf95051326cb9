// Package sweeper coordinates the list → evaluate → delete flow
// across clouds and resource kinds.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/siivo/executor"
	"github.com/yairfalse/siivo/policy"
	"github.com/yairfalse/siivo/providers"
	"github.com/yairfalse/siivo/retention"
	"github.com/yairfalse/siivo/telemetry"
	"github.com/yairfalse/siivo/types"
)

// Sweeper runs one sweep over every cloud a provider exposes
type Sweeper struct {
	provider providers.CloudProvider
	filter   *retention.Filter
	executor *executor.Executor
	policies *policy.Engine
	logger   *telemetry.Logger
	otel     *telemetry.Provider
	workers  int
	clock    func() time.Time
}

// New creates a sweeper. Clouds are processed sequentially unless
// WithWorkers raises the fan-out.
func New(provider providers.CloudProvider, filter *retention.Filter, exec *executor.Executor) *Sweeper {
	return &Sweeper{
		provider: provider,
		filter:   filter,
		executor: exec,
		logger:   telemetry.NewLogger("sweeper"),
		workers:  1,
		clock:    time.Now,
	}
}

// WithPolicyEngine adds operator-supplied Rego protection policies
func (s *Sweeper) WithPolicyEngine(e *policy.Engine) *Sweeper {
	s.policies = e
	return s
}

// WithTelemetry adds metrics and tracing
func (s *Sweeper) WithTelemetry(p *telemetry.Provider) *Sweeper {
	s.otel = p
	return s
}

// WithWorkers bounds concurrent per-cloud fan-out
func (s *Sweeper) WithWorkers(n int) *Sweeper {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithClock overrides the time source (for tests)
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run sweeps every cloud once. A single reference instant captured
// here is used for all age computations, so ages cannot drift over
// the run. Failing to list clouds is the only fatal error.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	now := s.clock()
	result := &Result{StartTime: now}

	if s.otel != nil {
		var span trace.Span
		ctx, span = s.otel.StartSpan(ctx, "sweeper.run")
		defer span.End()
	}

	clouds, err := s.provider.ListClouds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clouds: %w", err)
	}

	s.logger.WithContext(ctx).Info().
		Str("provider", s.provider.Name()).
		Int("clouds", len(clouds)).
		Int("workers", s.workers).
		Bool("dry_run", s.executor.DryRun()).
		Msg("starting sweep")

	s.sweepClouds(ctx, clouds, now, result)

	result.EndTime = s.clock()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if s.otel != nil {
		s.otel.RecordSweepDuration(ctx, s.provider.Name(), result.Duration)
	}

	s.logger.WithContext(ctx).Info().
		Int("scanned", result.Scanned).
		Int("eligible", result.Eligible).
		Int("deleted", result.Deleted).
		Int("simulated", result.Simulated).
		Int("protected", result.Protected).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("listing_errors", len(result.ListingErrors)).
		Dur("duration", result.Duration).
		Msg("sweep complete")

	return result, nil
}

func (s *Sweeper) sweepClouds(ctx context.Context, clouds []types.Cloud, now time.Time, result *Result) {
	if s.workers <= 1 {
		for _, cloud := range clouds {
			s.sweepCloud(ctx, cloud, now, result)
		}
		return
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, cloud := range clouds {
		wg.Add(1)
		sem <- struct{}{}
		go func(cloud types.Cloud) {
			defer wg.Done()
			defer func() { <-sem }()
			s.sweepCloud(ctx, cloud, now, result)
		}(cloud)
	}
	wg.Wait()
}

func (s *Sweeper) sweepCloud(ctx context.Context, cloud types.Cloud, now time.Time, result *Result) {
	s.logger.WithContext(ctx).Debug().
		Str("cloud", cloud.ID).
		Msg("sweeping cloud")

	if cloud.SupportsVolumes {
		s.sweepKind(ctx, cloud, types.KindVolume, now, result)
	}
	if cloud.SupportsSnapshots {
		s.sweepKind(ctx, cloud, types.KindSnapshot, now, result)
	}
}

// sweepKind lists one kind in one cloud and processes each record.
// A failed listing skips this cloud/kind only; the run continues.
func (s *Sweeper) sweepKind(ctx context.Context, cloud types.Cloud, kind types.Kind, now time.Time, result *Result) {
	var records []types.Record
	var err error

	switch kind {
	case types.KindVolume:
		records, err = s.provider.ListVolumes(ctx, cloud.ID)
	case types.KindSnapshot:
		records, err = s.provider.ListSnapshots(ctx, cloud.ID)
	}

	if err != nil {
		s.logger.LogListingError(ctx, cloud.ID, string(kind), err)
		if s.otel != nil {
			s.otel.RecordListingError(ctx, cloud.ID, string(kind))
		}
		result.addListingError(cloud.ID, kind, err)
		return
	}

	if s.otel != nil {
		s.otel.RecordScanned(ctx, cloud.ID, string(kind), len(records))
	}

	for _, rec := range records {
		s.processRecord(ctx, rec, now, result)
	}
}

func (s *Sweeper) processRecord(ctx context.Context, rec types.Record, now time.Time, result *Result) {
	result.addScanned()

	age, err := retention.Age(rec, now)
	if err != nil {
		s.logger.LogRecordSkipped(ctx, rec.ID, err)
		result.addOutcome(types.OutcomeSkipped)
		return
	}

	verdict := s.filter.Evaluate(rec, age)
	if !verdict.Eligible {
		s.logger.WithContext(ctx).Debug().
			Str("managed_id", rec.ManagedID).
			Float64("age_hours", age.Hours()).
			Str("reason", verdict.Reason).
			Msg("record kept")
		s.recordProtected(ctx, rec, result)
		return
	}

	if protected := s.policyProtects(ctx, rec, age, now); protected {
		s.recordProtected(ctx, rec, result)
		return
	}

	result.addEligible()
	outcome := s.executor.Execute(ctx, rec)
	result.addOutcome(outcome)

	if s.otel == nil {
		return
	}
	switch outcome {
	case types.OutcomeDeleted, types.OutcomeSimulated:
		s.otel.RecordDeleted(ctx, rec.Cloud, string(rec.Kind), !outcome.IsDestructive())
	case types.OutcomeFailed:
		s.otel.RecordDeleteFailure(ctx, rec.Cloud, string(rec.Kind))
	}
}

// policyProtects asks the optional Rego policies about an otherwise
// eligible record. An evaluation error keeps the record: deleting on
// a broken policy is the wrong failure mode.
func (s *Sweeper) policyProtects(ctx context.Context, rec types.Record, age time.Duration, now time.Time) bool {
	if s.policies == nil || s.policies.Empty() {
		return false
	}

	res, err := s.policies.Evaluate(ctx, policy.Input{
		Record:    rec,
		AgeDays:   int(age.Hours() / 24),
		DryRun:    s.executor.DryRun(),
		Timestamp: now,
	})
	if err != nil {
		s.logger.WithContext(ctx).Error().
			Err(err).
			Str("managed_id", rec.ManagedID).
			Msg("policy evaluation failed, keeping record")
		return true
	}

	return res.Protected
}

func (s *Sweeper) recordProtected(ctx context.Context, rec types.Record, result *Result) {
	result.addProtected()
	if s.otel != nil {
		s.otel.RecordProtected(ctx, rec.Cloud, string(rec.Kind))
	}
}
