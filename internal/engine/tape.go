package engine

import "github.com/talgya/gossip-market/internal/agents"

// Tape keeps the most recent closing prices of every market, newest first.
// It implements agents.PriceTape for the reflection pass.
type Tape struct {
	closes   [][]float64 // per market, newest first
	capacity int
}

// NewTape creates a tape holding up to capacity closes per market, seeded
// with the opening prices.
func NewTape(opening []float64, capacity int) *Tape {
	if capacity < 2 {
		capacity = 2
	}
	t := &Tape{closes: make([][]float64, len(opening)), capacity: capacity}
	for m, p := range opening {
		t.closes[m] = make([]float64, 1, capacity)
		t.closes[m][0] = p
	}
	return t
}

// Record appends one close per market.
func (t *Tape) Record(closes []float64) {
	for m, p := range closes {
		h := t.closes[m]
		if len(h) < t.capacity {
			h = append(h, 0)
		}
		copy(h[1:], h)
		h[0] = p
		t.closes[m] = h
	}
}

// Movement returns the latest close minus the close delay steps earlier.
func (t *Tape) Movement(m agents.MarketID, delay int) (float64, bool) {
	if int(m) < 0 || int(m) >= len(t.closes) || delay < 0 {
		return 0, false
	}
	h := t.closes[m]
	if delay >= len(h) {
		return 0, false
	}
	return h[0] - h[delay], true
}
