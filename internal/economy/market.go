// Package economy provides the per-asset call market: order intake, batch
// clearing at a single crossing price, fill settlement, price history and
// realized volatility.
package economy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/gossip-market/internal/agents"
	"github.com/talgya/gossip-market/internal/entropy"
	"github.com/talgya/gossip-market/internal/stats"
)

const (
	// noiseMean skews limit prices slightly above the current price.
	noiseMean = 1.01
	// noiseVolScale converts current volatility into limit-price dispersion.
	noiseVolScale = 3.5
	// minSpend is the smallest cash amount worth submitting.
	minSpend = 1e-9
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Order is a limit order living for a single clearing round.
type Order struct {
	Agent      agents.AgentID
	Side       Side
	Quantity   int
	LimitPrice float64
}

// Executor settles fills against trader balances.
type Executor interface {
	ApplyBuy(id agents.AgentID, m agents.MarketID, qty int, price float64) error
	ApplySell(id agents.AgentID, m agents.MarketID, qty int, price float64) error
}

// Market is one traded asset's call market. It is not safe for concurrent use.
type Market struct {
	ID agents.MarketID

	history    []float64 // newest first, never empty
	capacity   int
	volatility float64

	buys  []Order
	sells []Order
}

// NewMarket creates a market whose history is seeded with initialPrice.
func NewMarket(id agents.MarketID, initialPrice, initialVolatility float64, historyLen int) *Market {
	if historyLen < 1 {
		historyLen = 1
	}
	h := make([]float64, 1, historyLen)
	h[0] = initialPrice
	return &Market{
		ID:         id,
		history:    h,
		capacity:   historyLen,
		volatility: math.Max(0, initialVolatility),
	}
}

// Price returns the most recent clearing price.
func (m *Market) Price() float64 { return m.history[0] }

// Volatility returns the current realized volatility estimate.
func (m *Market) Volatility() float64 { return m.volatility }

// History returns a copy of the retained prices, newest first.
func (m *Market) History() []float64 {
	out := make([]float64, len(m.history))
	copy(out, m.history)
	return out
}

// Pending returns the number of queued buy and sell orders.
func (m *Market) Pending() (buys, sells int) { return len(m.buys), len(m.sells) }

// noise draws the multiplicative limit-price factor N(1.01, 3.5*vol).
func (m *Market) noise(rng *rand.Rand) float64 {
	return entropy.Normal(rng, noiseMean, noiseVolScale*m.volatility)
}

// SubmitBuy queues a buy spending at most cashToSpend. The limit price is
// price*noise and the quantity floor(cashToSpend/limit). It reports whether
// an order was queued.
func (m *Market) SubmitBuy(agent agents.AgentID, cashToSpend float64, rng *rand.Rand) bool {
	if cashToSpend < minSpend {
		return false
	}
	n := m.noise(rng)
	if n <= 0 {
		return false
	}
	limit := m.Price() * n
	qty := math.Floor(cashToSpend / limit)
	if qty < 1 || math.IsInf(qty, 0) {
		return false
	}
	m.buys = append(m.buys, Order{Agent: agent, Side: SideBuy, Quantity: int(qty), LimitPrice: limit})
	return true
}

// SubmitSell queues a sell of qty units at limit price/noise. It reports
// whether an order was queued.
func (m *Market) SubmitSell(agent agents.AgentID, qty int, rng *rand.Rand) bool {
	if qty <= 0 {
		return false
	}
	n := m.noise(rng)
	if n <= 0 {
		return false
	}
	m.sells = append(m.sells, Order{Agent: agent, Side: SideSell, Quantity: qty, LimitPrice: m.Price() / n})
	return true
}

// AddOrder queues a fully specified order.
func (m *Market) AddOrder(o Order) error {
	if o.Quantity <= 0 {
		return fmt.Errorf("market %d: order quantity %d must be positive", m.ID, o.Quantity)
	}
	if !(o.LimitPrice > 0) || math.IsInf(o.LimitPrice, 0) {
		return fmt.Errorf("market %d: invalid limit price %v", m.ID, o.LimitPrice)
	}
	switch o.Side {
	case SideBuy:
		m.buys = append(m.buys, o)
	case SideSell:
		m.sells = append(m.sells, o)
	default:
		return fmt.Errorf("market %d: unknown side %v", m.ID, o.Side)
	}
	return nil
}

// Fill is one settled order (or the settled part of one).
type Fill struct {
	Agent    agents.AgentID
	Side     Side
	Quantity int
	Price    float64
}

// ClearResult describes one clearing round.
type ClearResult struct {
	Crossed bool
	Price   float64 // clearing price when Crossed, else the retained price
	Volume  int
	BestBid float64 // 0 without buy orders
	BestAsk float64 // 0 without sell orders
	Buys    int     // orders received this round
	Sells   int
	Fills   []Fill
}

// Clear matches the queued orders at a single price, settles fills through
// exec, records the price, recomputes volatility and empties both queues.
// A settlement failure is returned with step context and must end the run.
func (m *Market) Clear(step int, exec Executor) (ClearResult, error) {
	defer m.reset()

	res := ClearResult{Price: m.Price(), Buys: len(m.buys), Sells: len(m.sells)}

	// Best prices first; ties keep arrival order.
	sort.SliceStable(m.buys, func(i, j int) bool { return m.buys[i].LimitPrice > m.buys[j].LimitPrice })
	sort.SliceStable(m.sells, func(i, j int) bool { return m.sells[i].LimitPrice < m.sells[j].LimitPrice })
	if len(m.buys) > 0 {
		res.BestBid = m.buys[0].LimitPrice
	}
	if len(m.sells) > 0 {
		res.BestAsk = m.sells[0].LimitPrice
	}

	x, ok := cross(m.buys, m.sells)
	if ok {
		res.Crossed = true
		res.Price = (x.buyPrice + x.sellPrice) / 2
		res.Volume = min(x.buyVolume, x.sellVolume)

		m.record(res.Price)

		fills, err := m.execute(res.Volume, res.Price, exec)
		res.Fills = fills
		if err != nil {
			var inv *agents.InvariantError
			if errors.As(err, &inv) {
				inv.Step = step
			}
			return res, fmt.Errorf("clear market %d step %d: %w", m.ID, step, err)
		}
	}

	m.updateVolatility()
	return res, nil
}

// crossing is the stopping point of the crossing walk.
type crossing struct {
	buyVolume, sellVolume int
	buyPrice, sellPrice   float64 // marginal limit prices
}

// cross walks cumulative volume inward from the best bid and ask. The side
// with less cumulative volume takes its next order while that order still
// crosses the other side's marginal price. When both volumes are equal both
// sides advance together, provided the next bid still crosses the next ask.
// buys and sells must be sorted best first.
func cross(buys, sells []Order) (crossing, bool) {
	if len(buys) == 0 || len(sells) == 0 || buys[0].LimitPrice < sells[0].LimitPrice {
		return crossing{}, false
	}

	x := crossing{
		buyVolume:  buys[0].Quantity,
		sellVolume: sells[0].Quantity,
		buyPrice:   buys[0].LimitPrice,
		sellPrice:  sells[0].LimitPrice,
	}
	i, j := 1, 1
	for {
		switch {
		case x.buyVolume < x.sellVolume:
			if i >= len(buys) || buys[i].LimitPrice < x.sellPrice {
				return x, true
			}
			x.buyVolume += buys[i].Quantity
			x.buyPrice = buys[i].LimitPrice
			i++
		case x.sellVolume < x.buyVolume:
			if j >= len(sells) || sells[j].LimitPrice > x.buyPrice {
				return x, true
			}
			x.sellVolume += sells[j].Quantity
			x.sellPrice = sells[j].LimitPrice
			j++
		default:
			if i >= len(buys) || j >= len(sells) || buys[i].LimitPrice < sells[j].LimitPrice {
				return x, true
			}
			x.buyVolume += buys[i].Quantity
			x.buyPrice = buys[i].LimitPrice
			x.sellVolume += sells[j].Quantity
			x.sellPrice = sells[j].LimitPrice
			i++
			j++
		}
	}
}

// execute settles volume units on each side, best orders first. The last
// order touched on a side may be partially filled.
func (m *Market) execute(volume int, price float64, exec Executor) ([]Fill, error) {
	var fills []Fill

	remaining := volume
	for _, o := range m.buys {
		if remaining == 0 {
			break
		}
		qty := min(o.Quantity, remaining)
		if err := exec.ApplyBuy(o.Agent, m.ID, qty, price); err != nil {
			return fills, err
		}
		fills = append(fills, Fill{Agent: o.Agent, Side: SideBuy, Quantity: qty, Price: price})
		remaining -= qty
	}

	remaining = volume
	for _, o := range m.sells {
		if remaining == 0 {
			break
		}
		qty := min(o.Quantity, remaining)
		if err := exec.ApplySell(o.Agent, m.ID, qty, price); err != nil {
			return fills, err
		}
		fills = append(fills, Fill{Agent: o.Agent, Side: SideSell, Quantity: qty, Price: price})
		remaining -= qty
	}
	return fills, nil
}

// record pushes price to the front of the history, evicting the oldest
// entry beyond capacity.
func (m *Market) record(price float64) {
	if len(m.history) < m.capacity {
		m.history = append(m.history, 0)
	}
	copy(m.history[1:], m.history)
	m.history[0] = price
}

// updateVolatility sets volatility to the sample standard deviation of the
// retained log returns. With fewer than three prices it is left unchanged.
func (m *Market) updateVolatility() {
	if len(m.history) < 3 {
		return
	}
	sd, ok := stats.StdDev(stats.LogReturns(m.history))
	if !ok || math.IsNaN(sd) {
		return
	}
	m.volatility = sd
}

func (m *Market) reset() {
	m.buys = m.buys[:0]
	m.sells = m.sells[:0]
}
