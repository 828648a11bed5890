package correlator

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TraceGenerator issues 6-digit trace numbers from a monotonically
// increasing counter. Wraparound after a million in-flight exchanges is
// acceptable because the correlator rejects a still-pending duplicate and
// the caller simply draws the next number.
type TraceGenerator struct {
	counter atomic.Uint64
}

// NewTraceGenerator seeds the counter from the clock so restarts do not
// restart trace numbering from zero while old entries may still be pending
// upstream.
func NewTraceGenerator() *TraceGenerator {
	g := &TraceGenerator{}
	g.counter.Store(uint64(time.Now().UnixMilli()))
	return g
}

// Next returns the next trace number.
func (g *TraceGenerator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%06d", n%1000000)
}
