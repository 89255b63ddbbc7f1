// Package idgen wraps github.com/nats-io/nuid to produce the short,
// collision-resistant identifiers used for subscription ids, inboxes and
// streaming message guids (§4.B NUID generator).
//
// NUID already does the work this component is responsible for: a fixed
// length token with a high-entropy prefix and a monotonically
// incremented suffix, periodically (or on-demand) re-randomized. This
// package exists only to give that a short-lived-mutex-protected, named
// seam per the process-wide generator §5 describes, rather than scatter
// *nuid.NUID values across the codebase.
package idgen

import (
	"sync"

	"github.com/nats-io/nuid"
)

// Generator produces fixed-length, subject-safe identifiers. The zero
// value is not usable; use New().
type Generator struct {
	mu sync.Mutex
	n  *nuid.NUID
}

// New returns a Generator seeded from OS entropy (nuid.New() does this
// internally).
func New() *Generator {
	return &Generator{n: nuid.New()}
}

// Next returns the next identifier. Safe for concurrent use.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n.Next()
}

// Randomize forces an immediate prefix re-randomization, rather than
// waiting for NUID's own periodic rotation.
func (g *Generator) Randomize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n.RandomizePrefix()
}

// defaultGenerator backs the package-level Next helper for callers that
// don't need a dedicated sequence (e.g. one-off sids).
var defaultGenerator = New()

// Next returns the next identifier from the shared default generator.
func Next() string {
	return defaultGenerator.Next()
}
