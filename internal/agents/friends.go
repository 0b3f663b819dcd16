// Friend formation: after its reflection delay an agent compares each
// received influence with how prices actually moved, and befriends sources
// whose beliefs tracked the market.
package agents

import (
	"github.com/talgya/gossip-market/internal/stats"
)

// PriceTape reports how far a market's price moved over the last delay steps
// (current price minus the price delay steps ago). ok is false when the tape
// does not reach back that far.
type PriceTape interface {
	Movement(m MarketID, delay int) (float64, bool)
}

// ReflectionResult summarizes one reflection pass.
type ReflectionResult struct {
	Evaluated int // influences consumed
	Promoted  int // influences whose source became (or stayed) a friend
	Skipped   int // influences dropped for degenerate statistics
}

// Reflect consumes every pending influence recorded at or before
// step - ReflectionDelay. Sources whose recorded beliefs correlate with the
// per-market price movement above the agent's FriendThreshold join its
// friend queue.
func (c *Collection) Reflect(step int, tape PriceTape) ReflectionResult {
	var res ReflectionResult
	movements := make(map[int][]float64)

	for _, a := range c.agents {
		if step < a.ReflectionDelay || len(a.Pending) == 0 {
			continue
		}
		cutoff := step - a.ReflectionDelay
		if a.Pending[0].Step > cutoff {
			continue
		}

		mv, seen := movements[a.ReflectionDelay]
		if !seen {
			mv = c.movementVector(tape, a.ReflectionDelay)
			movements[a.ReflectionDelay] = mv
		}

		for len(a.Pending) > 0 && a.Pending[0].Step <= cutoff {
			inf := a.Pending[0]
			a.Pending[0] = Influence{}
			a.Pending = a.Pending[1:]
			res.Evaluated++

			if mv == nil {
				res.Skipped++
				continue
			}
			r, ok := stats.Pearson(mv, inf.Beliefs)
			if !ok {
				res.Skipped++
				continue
			}
			if r > a.FriendThreshold {
				a.addFriend(inf.Source)
				res.Promoted++
			}
		}
		if len(a.Pending) == 0 {
			a.Pending = nil
		}
	}
	return res
}

// movementVector returns per-market movement over delay steps, or nil when
// any market's tape is too short.
func (c *Collection) movementVector(tape PriceTape, delay int) []float64 {
	mv := make([]float64, c.markets)
	for m := range mv {
		v, ok := tape.Movement(MarketID(m), delay)
		if !ok {
			return nil
		}
		mv[m] = v
	}
	return mv
}
