// Belief diffusion: each step, influenced agents adopt the rounded consensus
// of a random set of influencers plus some of their friends.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/gossip-market/internal/entropy"
)

// DiffusionResult summarizes one diffusion pass.
type DiffusionResult struct {
	Influenced  int // agents that updated their beliefs
	Influencers int // influences recorded for later reflection
}

// Diffuse runs the influence pass for step. Every agent reads beliefs as they
// were before the pass began, so update order does not leak within a step.
// Random draws happen in agent id order, making the pass reproducible for a
// given rng state.
func (c *Collection) Diffuse(step int, rng *rand.Rand) DiffusionResult {
	var res DiffusionResult
	prev := c.beliefSnapshot()

	for i, a := range c.agents {
		if !entropy.Bernoulli(rng, a.InfluenceProbability) {
			continue
		}
		refs := c.drawInfluencers(rng, i, a)
		if len(refs) == 0 {
			continue
		}

		sources := make([][]float64, len(refs))
		for k, ref := range refs {
			sources[k] = c.lookup(ref, prev)
		}
		for m := 0; m < c.markets; m++ {
			sum := 0.0
			for _, b := range sources {
				sum += b[m]
			}
			a.Beliefs[m] = consensus(sum / float64(len(sources)))
		}

		for k, ref := range refs {
			snapshot := make([]float64, c.markets)
			copy(snapshot, sources[k])
			a.Pending = append(a.Pending, Influence{Source: ref, Beliefs: snapshot, Step: step})
		}
		res.Influenced++
		res.Influencers += len(refs)
	}
	return res
}

// consensus rounds a mean belief half-up onto {0, 1}. math.Round rounds
// half away from zero, which is half-up on [0,1], so an even split buys.
func consensus(mean float64) float64 {
	return math.Min(1, math.Max(0, math.Round(mean)))
}

// drawInfluencers picks InfluencerCount distinct sources from all agents and
// fundamentalists except self, then adds each friend with probability
// FriendInfluenceProbability. Friends are additive and may repeat a drawn
// source, which then weighs twice.
func (c *Collection) drawInfluencers(rng *rand.Rand, self int, a *Agent) []Ref {
	nAgents := len(c.agents)
	pool := nAgents + len(c.fundamentalists) - 1

	picks := entropy.SampleDistinct(rng, pool, a.InfluencerCount)
	refs := make([]Ref, 0, len(picks)+len(a.Friends))
	for _, j := range picks {
		if j >= self {
			j++
		}
		if j < nAgents {
			refs = append(refs, AgentRef(AgentID(j)))
		} else {
			refs = append(refs, FundamentalistRef(j-nAgents))
		}
	}
	for _, f := range a.Friends {
		if entropy.Bernoulli(rng, a.FriendInfluenceProbability) {
			refs = append(refs, f)
		}
	}
	return refs
}

func (c *Collection) beliefSnapshot() [][]float64 {
	snap := make([][]float64, len(c.agents))
	flat := make([]float64, len(c.agents)*c.markets)
	for i, a := range c.agents {
		row := flat[i*c.markets : (i+1)*c.markets : (i+1)*c.markets]
		copy(row, a.Beliefs)
		snap[i] = row
	}
	return snap
}
