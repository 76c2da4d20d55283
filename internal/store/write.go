package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/inlinesql/internal/ir"
)

// ErrNoFingerprint is returned when saving a plan without a fingerprint.
var ErrNoFingerprint = errors.New("plan has no fingerprint")

// SavePlan stores p as the current plan of its function.
//
// Returns changed=false when the catalog already holds a plan with the same
// fingerprint; the stored row, including its revision, is left as is.
func (s *Store) SavePlan(ctx context.Context, p *ir.ExecutionPlan) (changed bool, err error) {
	return savePlan(ctx, s.db, p)
}

// SavePlans stores every plan in one transaction and returns how many
// rows changed. Either all plans are saved or none are.
func (s *Store) SavePlans(ctx context.Context, plans []*ir.ExecutionPlan) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save plans: %w", err)
	}
	defer tx.Rollback()

	changed := 0
	for _, p := range plans {
		ok, err := savePlan(ctx, tx, p)
		if err != nil {
			return 0, err
		}
		if ok {
			changed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save plans: commit: %w", err)
	}
	return changed, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func savePlan(ctx context.Context, db execer, p *ir.ExecutionPlan) (bool, error) {
	if p.Fingerprint == "" {
		return false, fmt.Errorf("save plan %s: %w", p.Function, ErrNoFingerprint)
	}
	planJSON, err := marshalPlan(p)
	if err != nil {
		return false, fmt.Errorf("save plan %s: %w", p.Function, err)
	}

	// The WHERE clause turns an unchanged upsert into a no-op, which shows
	// up as zero rows affected.
	res, err := db.ExecContext(ctx, `
		INSERT INTO plans (function, fingerprint, call, shape, query, plan, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM plans))
		ON CONFLICT(function) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			call = excluded.call,
			shape = excluded.shape,
			query = excluded.query,
			plan = excluded.plan,
			seq = excluded.seq
		WHERE plans.fingerprint != excluded.fingerprint
	`,
		p.Function,
		p.Fingerprint,
		string(p.Call),
		shapeName(p),
		p.Query.Text,
		planJSON,
	)
	if err != nil {
		return false, fmt.Errorf("save plan %s: %w", p.Function, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save plan %s: rows affected: %w", p.Function, err)
	}
	return n > 0, nil
}

// DeletePlan removes a function's plan. Returns false if there was none.
func (s *Store) DeletePlan(ctx context.Context, function string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE function = ?`, function)
	if err != nil {
		return false, fmt.Errorf("delete plan %s: %w", function, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete plan %s: rows affected: %w", function, err)
	}
	return n > 0, nil
}
