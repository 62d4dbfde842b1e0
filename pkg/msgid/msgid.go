// Package msgid generates unique, roughly time-ordered message IDs.
// The layout is snowflake-style: 41 bits of milliseconds since a fixed
// epoch, 10 bits of node, 12 bits of per-millisecond sequence. IDs are
// handed to clients as opaque decimal strings; within a room the store's
// insertion order remains the authoritative ordering, not the ID.
package msgid

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits  = 10
	seqBits   = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	seqMask   = -1 ^ (-1 << seqBits)
	timeShift = nodeBits + seqBits
	nodeShift = seqBits

	// 2025-01-01 00:00:00 UTC
	epoch int64 = 1735689600000
)

// Generator mints IDs for a single node. Safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	last int64
	node int64
	seq  int64
}

// NewGenerator returns a Generator for the given node number. Node numbers
// must be unique across concurrently running API instances.
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("msgid: node number must be between 0 and 1023")
	}
	return &Generator{node: node}, nil
}

// Next returns a fresh ID. IDs from one Generator are strictly increasing.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.last {
		// Clock went backwards; hold at the last observed time rather
		// than emit an out-of-order ID.
		now = g.last
	}

	if now == g.last {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.last = now

	return ((now - epoch) << timeShift) | (g.node << nodeShift) | g.seq
}

// NextString returns Next formatted as the opaque wire form.
func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}
