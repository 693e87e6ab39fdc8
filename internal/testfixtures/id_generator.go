package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator produces deterministic appointment identifiers for tests.
// Scripted values are returned first, then prefix-N from the counter.
type IDGenerator struct {
	mu       sync.Mutex
	prefix   string
	counter  uint64
	scripted []string
	issued   []string
}

// NewIDGenerator returns a generator yielding prefix-1, prefix-2, ...
// An empty prefix means "apt".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "apt"
	}
	return &IDGenerator{prefix: prefix}
}

// NewScriptedIDGenerator returns a generator that yields ids in order before
// falling back to apt-N. Use it to force id collisions.
func NewScriptedIDGenerator(ids ...string) *IDGenerator {
	g := NewIDGenerator("")
	g.scripted = append(g.scripted, ids...)
	return g
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var id string
	if len(g.scripted) > 0 {
		id = g.scripted[0]
		g.scripted = g.scripted[1:]
	} else {
		g.counter++
		id = fmt.Sprintf("%s-%d", g.prefix, g.counter)
	}
	g.issued = append(g.issued, id)
	return id
}

// NextFunc exposes Next for injection into stores.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued returns every id handed out so far.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
