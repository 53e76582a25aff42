package testutil

// FixedIDGenerator generates the same identifier every time.
//
// This enables deterministic instance identifiers in scenario traces and
// golden snapshots.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. An empty id yields
// "test-instance-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-instance-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed identifier.
//
// Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
