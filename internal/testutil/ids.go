package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// testNamespace seeds the deterministic run ids handed out by SequentialIDs.
var testNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// SequentialIDs generates reproducible UUIDs for tests.
//
// The n-th call to NewID returns the same value across runs, so stored run
// ids can be compared against fixed expectations. Safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialIDs creates a generator. Generators with different prefixes
// never collide.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next id in the sequence.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return uuid.NewSHA1(testNamespace, []byte(fmt.Sprintf("%s-%d", g.prefix, g.n))).String()
}

// Nth returns the id the n-th call to NewID produces (1-based) without advancing.
func (g *SequentialIDs) Nth(n int64) string {
	return uuid.NewSHA1(testNamespace, []byte(fmt.Sprintf("%s-%d", g.prefix, n))).String()
}

// Reset rewinds the sequence so the next NewID returns Nth(1) again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
