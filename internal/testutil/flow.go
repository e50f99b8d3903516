package testutil

import "sync"

// FixedTokens is an ephemeral token source that hands out a fixed list, so
// t_ identifiers in golden files do not change between runs. Safe for
// concurrent use.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate panics once the list runs out: the test registered more
// ephemeral components than it planned for.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == len(g.tokens) {
		panic("testutil: fixed tokens exhausted")
	}
	g.next++
	return g.tokens[g.next-1]
}
