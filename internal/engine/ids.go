package engine

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUIDv7Generator issues UUIDv7 call IDs, which sort by creation time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator issues prefix-1, prefix-2, ... It is safe for
// concurrent use and is meant for tests and reproducible logs.
type SequenceGenerator struct {
	prefix string
	n      atomic.Int64
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) Generate() string {
	return g.prefix + "-" + strconv.FormatInt(g.n.Add(1), 10)
}
