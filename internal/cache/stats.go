package cache

import (
	"sync/atomic"

	tiercache "github.com/eugener/tiercache/internal"
)

// counters holds per-namespace lookup counters. They only grow until reset.
type counters struct {
	memoryHits    atomic.Int64
	memoryMisses  atomic.Int64
	durableHits   atomic.Int64
	durableMisses atomic.Int64
}

func (c *counters) snapshot() tiercache.Stats {
	return tiercache.Stats{
		MemoryHits:    c.memoryHits.Load(),
		MemoryMisses:  c.memoryMisses.Load(),
		DurableHits:   c.durableHits.Load(),
		DurableMisses: c.durableMisses.Load(),
	}
}

func (c *counters) reset() {
	c.memoryHits.Store(0)
	c.memoryMisses.Store(0)
	c.durableHits.Store(0)
	c.durableMisses.Store(0)
}
