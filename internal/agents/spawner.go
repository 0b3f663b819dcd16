// Agent spawning: creates the initial population and the fundamentalist
// reference beliefs from the configured distributions.
package agents

import (
	"math/rand"

	"github.com/talgya/gossip-market/internal/config"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	cfg     config.AgentConfig
	markets int
	rng     *rand.Rand
	nextID  AgentID
}

// NewSpawner creates a spawner drawing every parameter from rng.
func NewSpawner(cfg config.AgentConfig, markets int, rng *rand.Rand) *Spawner {
	return &Spawner{cfg: cfg, markets: markets, rng: rng}
}

// SpawnPopulation creates count agents with consecutive ids.
func (s *Spawner) SpawnPopulation(count int) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne())
	}
	return out
}

func (s *Spawner) spawnOne() *Agent {
	id := s.nextID
	s.nextID++

	cash := s.cfg.InitialCash.Sample(s.rng)
	if cash < 0 {
		cash = 0
	}

	a := &Agent{
		ID:               id,
		Cash:             cash,
		Assets:           make([]int, s.markets),
		Beliefs:          make([]float64, s.markets),
		OrderProbability: make([]float64, s.markets),
	}
	for m := 0; m < s.markets; m++ {
		a.Assets[m] = s.cfg.InitialAssets.SampleInt(s.rng)
		a.Beliefs[m] = s.cfg.InitialBelief.SampleUnit(s.rng)
		a.OrderProbability[m] = s.cfg.OrderProbability.SampleUnit(s.rng)
	}

	a.InfluenceProbability = s.cfg.InfluenceProbability.SampleUnit(s.rng)
	a.InfluencerCount = s.cfg.InfluencerCount.SampleInt(s.rng)
	a.ReflectionDelay = s.cfg.ReflectionDelay.SampleInt(s.rng)
	a.FriendThreshold = s.cfg.FriendThreshold.Sample(s.rng)
	a.MaxFriends = s.cfg.MaxFriends.SampleInt(s.rng)
	a.FriendInfluenceProbability = s.cfg.FriendInfluenceProbability.SampleUnit(s.rng)
	return a
}

// SpawnFundamentalists creates count fixed belief vectors.
func (s *Spawner) SpawnFundamentalists(count int) []Fundamentalist {
	out := make([]Fundamentalist, 0, count)
	for i := 0; i < count; i++ {
		beliefs := make([]float64, s.markets)
		for m := range beliefs {
			beliefs[m] = s.cfg.FundamentalistBelief.SampleUnit(s.rng)
		}
		out = append(out, Fundamentalist{Index: i, Beliefs: beliefs})
	}
	return out
}
