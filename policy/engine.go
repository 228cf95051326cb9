// Package policy evaluates operator-supplied Rego policies that can
// protect records beyond the builtin retention filter. Policies are
// advisory in one direction only: they can keep a record, never force
// a deletion.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/siivo/telemetry"
	"github.com/yairfalse/siivo/types"
)

// Engine compiles and evaluates Rego policies against records
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// Input is the document handed to every policy evaluation
type Input struct {
	Record    types.Record `json:"record"`
	AgeDays   int          `json:"age_days"`
	DryRun    bool         `json:"dry_run"`
	Timestamp time.Time    `json:"timestamp"`
}

// Result is the aggregated answer across all loaded policies
type Result struct {
	Protected bool     `json:"protected"`
	Reason    string   `json:"reason,omitempty"`
	Policies  []string `json:"policies,omitempty"`
}

// NewEngine creates an empty policy engine
func NewEngine() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// Empty reports whether any policies are loaded
func (e *Engine) Empty() bool {
	return len(e.queries) == 0
}

// LoadPolicy compiles a single Rego module. Policies live under the
// siivo namespace and may define `protect` (bool) and `reason` (string).
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.siivo"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// LoadDir loads every *.rego file under dir
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("policy dir %s: %w", dir, err)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("read policy file %s: %w", path, err)
		}

		return e.LoadPolicy(ctx, filepath.Base(path), string(content))
	})
}

// Evaluate runs all loaded policies; any policy that protects wins
func (e *Engine) Evaluate(ctx context.Context, input Input) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.evaluate",
		trace.WithAttributes(
			attribute.String("resource.id", input.Record.ID),
			attribute.String("resource.kind", string(input.Record.Kind))))
	defer span.End()

	final := Result{}

	for name, query := range e.queries {
		result, err := e.evaluatePolicy(ctx, query, input)
		if err != nil {
			return Result{}, fmt.Errorf("policy %s: %w", name, err)
		}

		if result.Protected {
			final.Protected = true
			final.Policies = append(final.Policies, name)
			if final.Reason == "" {
				final.Reason = result.Reason
			}
		}
	}

	if final.Protected {
		e.logger.WithContext(ctx).Debug().
			Str("resource_id", input.Record.ID).
			Strs("policies", final.Policies).
			Str("reason", final.Reason).
			Msg("record protected by policy")
	}

	return final, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, query rego.PreparedEvalQuery, input Input) (Result, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Result{}, fmt.Errorf("evaluation failed: %w", err)
	}

	result := Result{}
	for _, res := range results {
		for _, expr := range res.Expressions {
			bindExpression(expr.Value, &result)
		}
	}
	return result, nil
}

// bindExpression picks protect/reason out of a policy document.
// OPA returns arbitrary JSON shapes, so this stays on interface{}.
func bindExpression(value interface{}, result *Result) {
	doc, ok := value.(map[string]interface{})
	if !ok {
		return
	}

	if protected, ok := doc["protect"].(bool); ok && protected {
		result.Protected = true
	}
	if reason, ok := doc["reason"].(string); ok {
		result.Reason = reason
	}
}
