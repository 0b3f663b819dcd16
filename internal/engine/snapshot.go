package engine

import (
	"github.com/talgya/gossip-market/internal/agents"
)

// Snapshot is an immutable copy of simulation state for readers outside the
// step loop (the query API and the live view).
type Snapshot struct {
	RunID     string           `json:"run_id"`
	Step      int              `json:"step"`
	RunLength int              `json:"run_length"`
	Markets   []MarketSnapshot `json:"markets"`
	Agents    []AgentSnapshot  `json:"-"`

	TotalCash   float64  `json:"total_cash"`
	MedianCash  float64  `json:"median_cash"`
	FriendsMean float64  `json:"friends_mean"`
	Stats       SimStats `json:"stats"`
	Halted      string   `json:"halted,omitempty"` // fatal error text
}

// MarketSnapshot is one market's state after the last step.
type MarketSnapshot struct {
	Clearing
	History     []float64 `json:"history"`
	TotalAssets int       `json:"total_assets"`
	MeanBelief  float64   `json:"mean_belief"`
}

// AgentSnapshot is one agent's state after the last step.
type AgentSnapshot struct {
	ID              agents.AgentID `json:"id"`
	Cash            float64        `json:"cash"`
	Assets          []int          `json:"assets"`
	Beliefs         []float64      `json:"beliefs"`
	Friends         []agents.Ref   `json:"friends"`
	Pending         int            `json:"pending"`
	ReflectionDelay int            `json:"reflection_delay"`
	MaxFriends      int            `json:"max_friends"`
	FriendThreshold float64        `json:"friend_threshold"`
}

// Snapshot copies the current state. It must be called from the goroutine
// that steps the simulation.
func (s *Simulation) Snapshot(runID string, runLength int) *Snapshot {
	snap := &Snapshot{
		RunID:       runID,
		Step:        s.step,
		RunLength:   runLength,
		Markets:     make([]MarketSnapshot, len(s.Markets)),
		Agents:      make([]AgentSnapshot, s.Agents.Len()),
		TotalCash:   s.Agents.TotalCash(),
		MedianCash:  s.Agents.MedianCash(),
		FriendsMean: s.Agents.MeanFriends(),
		Stats:       s.Stats,
	}
	if s.err != nil {
		snap.Halted = s.err.Error()
	}

	for i, m := range s.Markets {
		snap.Markets[i] = MarketSnapshot{
			Clearing:    s.last[i],
			History:     m.History(),
			TotalAssets: s.Agents.TotalAssets(m.ID),
			MeanBelief:  s.Agents.MeanBelief(m.ID),
		}
		snap.Markets[i].Price = m.Price()
		snap.Markets[i].Volatility = m.Volatility()
	}

	for i, a := range s.Agents.Agents() {
		snap.Agents[i] = AgentSnapshot{
			ID:              a.ID,
			Cash:            a.Cash,
			Assets:          append([]int(nil), a.Assets...),
			Beliefs:         append([]float64(nil), a.Beliefs...),
			Friends:         append([]agents.Ref(nil), a.Friends...),
			Pending:         len(a.Pending),
			ReflectionDelay: a.ReflectionDelay,
			MaxFriends:      a.MaxFriends,
			FriendThreshold: a.FriendThreshold,
		}
	}
	return snap
}
