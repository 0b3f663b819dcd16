package agents

import (
	"fmt"

	"github.com/talgya/gossip-market/internal/stats"
)

// Collection owns every agent and fundamentalist of a run. It runs the
// diffusion and reflection passes and settles market fills.
type Collection struct {
	agents          []*Agent
	fundamentalists []Fundamentalist
	markets         int
}

// NewCollection wraps a population. Agent ids must equal their index.
func NewCollection(ag []*Agent, funds []Fundamentalist, markets int) (*Collection, error) {
	for i, a := range ag {
		if int(a.ID) != i {
			return nil, fmt.Errorf("agent at index %d has id %d", i, a.ID)
		}
		if len(a.Assets) != markets || len(a.Beliefs) != markets || len(a.OrderProbability) != markets {
			return nil, fmt.Errorf("agent %d: per-market vectors do not match %d markets", a.ID, markets)
		}
	}
	for i, f := range funds {
		if len(f.Beliefs) != markets {
			return nil, fmt.Errorf("fundamentalist %d: %d beliefs for %d markets", i, len(f.Beliefs), markets)
		}
	}
	return &Collection{agents: ag, fundamentalists: funds, markets: markets}, nil
}

// Agents returns the population. Callers outside the simulation must treat
// it as read-only.
func (c *Collection) Agents() []*Agent { return c.agents }

// Agent returns the agent with the given id, or nil.
func (c *Collection) Agent(id AgentID) *Agent {
	if id < 0 || int(id) >= len(c.agents) {
		return nil
	}
	return c.agents[id]
}

// Fundamentalists returns the fixed reference beliefs.
func (c *Collection) Fundamentalists() []Fundamentalist { return c.fundamentalists }

// Markets returns the number of markets every vector is sized for.
func (c *Collection) Markets() int { return c.markets }

// Len returns the number of agents.
func (c *Collection) Len() int { return len(c.agents) }

// Beliefs resolves ref to the current belief vector of its source, or nil
// for an unknown ref.
func (c *Collection) Beliefs(ref Ref) []float64 {
	return c.lookup(ref, nil)
}

// lookup resolves ref against agentBeliefs when given (a snapshot indexed by
// agent id), otherwise against live agent state.
func (c *Collection) lookup(ref Ref, agentBeliefs [][]float64) []float64 {
	switch ref.Kind {
	case RefAgent:
		if ref.Index < 0 || ref.Index >= len(c.agents) {
			return nil
		}
		if agentBeliefs != nil {
			return agentBeliefs[ref.Index]
		}
		return c.agents[ref.Index].Beliefs
	case RefFundamentalist:
		if ref.Index < 0 || ref.Index >= len(c.fundamentalists) {
			return nil
		}
		return c.fundamentalists[ref.Index].Beliefs
	default:
		return nil
	}
}

// ApplyBuy settles a buy fill for agent id in market m.
func (c *Collection) ApplyBuy(id AgentID, m MarketID, qty int, price float64) error {
	a := c.Agent(id)
	if a == nil {
		return fmt.Errorf("apply buy: unknown agent %d", id)
	}
	return a.ApplyBuy(m, qty, price)
}

// ApplySell settles a sell fill for agent id in market m.
func (c *Collection) ApplySell(id AgentID, m MarketID, qty int, price float64) error {
	a := c.Agent(id)
	if a == nil {
		return fmt.Errorf("apply sell: unknown agent %d", id)
	}
	return a.ApplySell(m, qty, price)
}

// TotalCash sums cash over the population.
func (c *Collection) TotalCash() float64 {
	total := 0.0
	for _, a := range c.agents {
		total += a.Cash
	}
	return total
}

// MedianCash returns the population cash median (0 for an empty population).
func (c *Collection) MedianCash() float64 {
	cash := make([]float64, len(c.agents))
	for i, a := range c.agents {
		cash[i] = a.Cash
	}
	m, _ := stats.Median(cash)
	return m
}

// TotalAssets sums holdings of market m.
func (c *Collection) TotalAssets(m MarketID) int {
	total := 0
	for _, a := range c.agents {
		total += a.Assets[m]
	}
	return total
}

// MeanBelief averages belief in market m over the population.
func (c *Collection) MeanBelief(m MarketID) float64 {
	vals := make([]float64, len(c.agents))
	for i, a := range c.agents {
		vals[i] = a.Beliefs[m]
	}
	mean, _ := stats.Mean(vals)
	return mean
}

// MeanFriends averages friend-queue length over the population.
func (c *Collection) MeanFriends() float64 {
	counts := make([]int, len(c.agents))
	for i, a := range c.agents {
		counts[i] = len(a.Friends)
	}
	mean, _ := stats.Mean(counts)
	return mean
}

// MaxReflectionDelay returns the longest reflection delay in the population.
func (c *Collection) MaxReflectionDelay() int {
	longest := 0
	for _, a := range c.agents {
		if a.ReflectionDelay > longest {
			longest = a.ReflectionDelay
		}
	}
	return longest
}
