// Trading intent: every step each agent may place one order per market,
// buying when a uniform draw falls below its belief and selling otherwise.
package engine

import (
	"github.com/talgya/gossip-market/internal/economy"
	"github.com/talgya/gossip-market/internal/entropy"
)

// submitOrders queues this step's orders for market m and returns how many
// buys and sells were accepted.
func (s *Simulation) submitOrders(m *economy.Market) (buys, sells int) {
	for _, a := range s.Agents.Agents() {
		if !entropy.Bernoulli(s.rng, a.OrderProbability[m.ID]) {
			continue
		}
		if s.rng.Float64() < a.Beliefs[m.ID] {
			if m.SubmitBuy(a.ID, a.Cash*s.rng.Float64(), s.rng) {
				buys++
			}
			continue
		}
		qty := int(float64(a.Assets[m.ID]) * s.rng.Float64())
		if m.SubmitSell(a.ID, qty, s.rng) {
			sells++
		}
	}
	return buys, sells
}
