package testutil

// FixedIDGenerator generates the same call ID every time.
//
// Log lines of different calls then differ only in their other
// attributes, which keeps log assertions short.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed call ID generator. If id is empty,
// Generate returns "test-call".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-call"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed call ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
