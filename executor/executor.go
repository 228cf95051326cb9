// Package executor performs (or simulates) deletions and isolates
// their failures from the rest of the run.
package executor

import (
	"context"

	"github.com/yairfalse/siivo/telemetry"
	"github.com/yairfalse/siivo/types"
)

// Deleter is the one provider capability the executor needs
type Deleter interface {
	Delete(ctx context.Context, rec types.Record) error
}

// Executor deletes eligible records, or logs what it would delete in
// dry-run mode
type Executor struct {
	deleter Deleter
	dryRun  bool
	logger  *telemetry.Logger
}

// New creates an executor
func New(deleter Deleter, dryRun bool, logger *telemetry.Logger) *Executor {
	return &Executor{
		deleter: deleter,
		dryRun:  dryRun,
		logger:  logger,
	}
}

// DryRun reports whether the executor simulates deletions
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Execute deletes one record. A failed delete is logged and swallowed;
// one record's failure must never block the records after it.
func (e *Executor) Execute(ctx context.Context, rec types.Record) types.Outcome {
	if e.dryRun {
		e.logger.WithContext(ctx).Info().
			Str("managed_id", rec.ManagedID).
			Str("nickname", rec.Nickname).
			Str("kind", string(rec.Kind)).
			Msg("would delete")
		return types.OutcomeSimulated
	}

	e.logger.WithContext(ctx).Info().
		Str("managed_id", rec.ManagedID).
		Str("nickname", rec.Nickname).
		Str("kind", string(rec.Kind)).
		Msg("deleting")

	if err := e.deleter.Delete(ctx, rec); err != nil {
		e.logger.WithContext(ctx).Error().
			Err(err).
			Str("managed_id", rec.ManagedID).
			Msg("deletion failed")
		return types.OutcomeFailed
	}

	e.logger.WithContext(ctx).Info().
		Str("managed_id", rec.ManagedID).
		Msg("deletion successful")
	return types.OutcomeDeleted
}
