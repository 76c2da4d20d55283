package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/inlinesql/internal/ir"
)

// ErrNotFound is returned when the catalog has no plan for a function.
var ErrNotFound = errors.New("plan not found")

// PlanSummary is the listing view of a stored plan.
type PlanSummary struct {
	Function    string
	Fingerprint string
	Call        ir.ClientOp
	Shape       string
	Query       string
	Seq         int64
}

// LoadPlan returns the stored plan of a function.
func (s *Store) LoadPlan(ctx context.Context, function string) (*ir.ExecutionPlan, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM plans WHERE function = ?`, function).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load plan %s: %w", function, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", function, err)
	}
	return unmarshalPlan(data)
}

// Fingerprint returns the fingerprint of a function's stored plan.
func (s *Store) Fingerprint(ctx context.Context, function string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, `SELECT fingerprint FROM plans WHERE function = ?`, function).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("fingerprint %s: %w", function, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", function, err)
	}
	return fp, nil
}

// ListPlans returns every stored plan ordered by function name.
//
// Returns an empty slice (not nil) for an empty catalog.
func (s *Store) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT function, fingerprint, call, shape, query, seq
		FROM plans
		ORDER BY function COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []PlanSummary{}
	for rows.Next() {
		var (
			ps   PlanSummary
			call string
		)
		if err := rows.Scan(&ps.Function, &ps.Fingerprint, &call, &ps.Shape, &ps.Query, &ps.Seq); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		ps.Call = ir.ClientOp(call)
		plans = append(plans, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}
