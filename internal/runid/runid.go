// Package runid issues identifiers for census, hashing and reconciliation
// runs. The same ID is stamped into the persisted snapshot and the run
// ledger so the two can be joined later.
package runid

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces run IDs.
type Generator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered UUIDv7 strings, so IDs sort by the
// moment their run started. The zero value is ready to use.
type UUIDv7Generator struct{}

// Generate implements Generator.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the system random source does.
		panic(err)
	}
	return id.String()
}

// FixedGenerator hands out a fixed list of IDs, for tests that assert on
// persisted run IDs. Safe for concurrent use.
type FixedGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("run-1", "run-2")
//	gen.Generate() // "run-1"
//	gen.Generate() // "run-2"
//	gen.Generate() // panics
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
//
// Panics if all IDs have been consumed, which means the test started more
// runs than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == len(g.ids) {
		panic("runid: fixed IDs exhausted")
	}
	g.next++
	return g.ids[g.next-1]
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
