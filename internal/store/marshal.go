package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/inlinesql/internal/ir"
)

// marshalPlan converts a plan to JSON TEXT for storage.
// HTML escaping is disabled so query text is stored as written.
func marshalPlan(p *ir.ExecutionPlan) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPlan parses a stored plan.
func unmarshalPlan(data string) (*ir.ExecutionPlan, error) {
	var p ir.ExecutionPlan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &p, nil
}

func shapeName(p *ir.ExecutionPlan) string {
	if p.Shape == nil {
		return ""
	}
	return p.Shape.String()
}
