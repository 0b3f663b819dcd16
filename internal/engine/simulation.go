// Simulation ties the agent population and the markets together and advances
// them one step at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gossip-market/internal/agents"
	"github.com/talgya/gossip-market/internal/config"
	"github.com/talgya/gossip-market/internal/economy"
	"github.com/talgya/gossip-market/internal/entropy"
	"github.com/talgya/gossip-market/internal/report"
)

// Stream salts for entropy.Derive.
const (
	saltPopulation = 1
	saltStep       = 2
)

// Simulation holds the complete market state.
type Simulation struct {
	Agents  *agents.Collection
	Markets []*economy.Market

	rng      *rand.Rand
	tape     *Tape
	reporter report.Reporter

	step int        // next step to run
	last []Clearing // most recent clearing per market
	err  error      // sticky fatal error

	Stats SimStats
}

// Clearing is the outcome of one market's round within a step.
type Clearing struct {
	Market     agents.MarketID `json:"market"`
	Crossed    bool            `json:"crossed"`
	Price      float64         `json:"price"`
	Volume     int             `json:"volume"`
	BestBid    float64         `json:"best_bid"`
	BestAsk    float64         `json:"best_ask"`
	Buys       int             `json:"buys"`
	Sells      int             `json:"sells"`
	Volatility float64         `json:"volatility"`
}

// SimStats tracks cumulative run statistics.
type SimStats struct {
	Steps              int   `json:"steps"`
	Crosses            int   `json:"crosses"`
	NoCrosses          int   `json:"no_crosses"`
	Volume             int64 `json:"volume"`
	Orders             int64 `json:"orders"`
	Influenced         int64 `json:"influenced"`
	Influences         int64 `json:"influences"`
	ReflectionsSkipped int64 `json:"reflections_skipped"`
	FriendsAdded       int64 `json:"friends_added"`
}

// NewSimulation spawns a population from cfg and opens one market per
// configured asset. Population sampling and step draws use separate streams
// derived from seed, so a run is reproducible from (cfg, seed).
func NewSimulation(cfg config.Config, seed int64, rep report.Reporter) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	if rep == nil {
		rep = report.Discard
	}

	nm := cfg.Market.MarketCount
	spawner := agents.NewSpawner(cfg.Agent, nm, entropy.Derive(seed, saltPopulation))
	pop := spawner.SpawnPopulation(cfg.Agent.AgentCount)
	funds := spawner.SpawnFundamentalists(cfg.Agent.FundamentalistCount)
	coll, err := agents.NewCollection(pop, funds, nm)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}

	return newSimulation(coll, cfg.Market, entropy.Derive(seed, saltStep), rep), nil
}

// newSimulation wires an existing population to fresh markets.
func newSimulation(coll *agents.Collection, mc config.MarketConfig, rng *rand.Rand, rep report.Reporter) *Simulation {
	markets := make([]*economy.Market, coll.Markets())
	opening := make([]float64, len(markets))
	for i := range markets {
		markets[i] = economy.NewMarket(agents.MarketID(i), mc.InitialPrice, mc.InitialVolatility, mc.PriceHistoryCount)
		opening[i] = markets[i].Price()
	}

	last := make([]Clearing, len(markets))
	for i, m := range markets {
		last[i] = Clearing{Market: m.ID, Price: m.Price(), Volatility: m.Volatility()}
	}

	return &Simulation{
		Agents:   coll,
		Markets:  markets,
		rng:      rng,
		tape:     NewTape(opening, coll.MaxReflectionDelay()+1),
		reporter: rep,
		last:     last,
	}
}

// CurrentStep returns the number of completed steps.
func (s *Simulation) CurrentStep() int { return s.step }

// Err returns the fatal error that halted the simulation, if any.
func (s *Simulation) Err() error { return s.err }

// LastClearing returns the most recent round of market m.
func (s *Simulation) LastClearing(m agents.MarketID) Clearing { return s.last[m] }

// Step advances the simulation by one step: belief diffusion, then each
// market in random order takes orders and clears, then agents reflect on
// past influences against the new closing prices. Series are reported last.
// A settlement failure returns a *StepError and halts the simulation.
func (s *Simulation) Step() error {
	if s.err != nil {
		return s.err
	}
	step := s.step

	d := s.Agents.Diffuse(step, s.rng)
	s.Stats.Influenced += int64(d.Influenced)
	s.Stats.Influences += int64(d.Influencers)

	for _, i := range s.rng.Perm(len(s.Markets)) {
		m := s.Markets[i]
		buys, sells := s.submitOrders(m)
		s.Stats.Orders += int64(buys + sells)

		res, err := m.Clear(step, s.Agents)
		if err != nil {
			s.err = &StepError{Step: step, Market: m.ID, Err: err}
			slog.Error("simulation halted", "step", step, "market", m.ID, "error", err)
			return s.err
		}
		s.last[i] = Clearing{
			Market:     m.ID,
			Crossed:    res.Crossed,
			Price:      res.Price,
			Volume:     res.Volume,
			BestBid:    res.BestBid,
			BestAsk:    res.BestAsk,
			Buys:       res.Buys,
			Sells:      res.Sells,
			Volatility: m.Volatility(),
		}
		if res.Crossed {
			s.Stats.Crosses++
			s.Stats.Volume += int64(res.Volume)
		} else {
			s.Stats.NoCrosses++
		}
	}

	closes := make([]float64, len(s.Markets))
	for i, m := range s.Markets {
		closes[i] = m.Price()
	}
	s.tape.Record(closes)

	r := s.Agents.Reflect(step, s.tape)
	s.Stats.FriendsAdded += int64(r.Promoted)
	s.Stats.ReflectionsSkipped += int64(r.Skipped)

	s.report(step)
	s.step++
	s.Stats.Steps = s.step
	return nil
}

// Run advances n steps, stopping at the first fatal error.
func (s *Simulation) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) report(step int) {
	for i, m := range s.Markets {
		s.reporter.Report(step, report.Indexed(report.Price, i), m.Price())
		s.reporter.Report(step, report.Indexed(report.Volatility, i), m.Volatility())
		s.reporter.Report(step, report.Indexed(report.Volume, i), float64(s.last[i].Volume))
		s.reporter.Report(step, report.Indexed(report.TotalAssets, i), float64(s.Agents.TotalAssets(m.ID)))
		s.reporter.Report(step, report.Indexed(report.MeanBelief, i), s.Agents.MeanBelief(m.ID))
	}
	s.reporter.Report(step, report.MedianWealth, s.Agents.MedianCash())
	s.reporter.Report(step, report.TotalCash, s.Agents.TotalCash())
	s.reporter.Report(step, report.FriendsMean, s.Agents.MeanFriends())
}

// LogReport writes the periodic step report.
func (s *Simulation) LogReport() {
	attrs := []any{
		"step", s.step,
		"total_cash", humanize.Commaf(s.Agents.TotalCash()),
		"median_cash", fmt.Sprintf("%.2f", s.Agents.MedianCash()),
		"friends_mean", fmt.Sprintf("%.3f", s.Agents.MeanFriends()),
		"volume", humanize.Comma(s.Stats.Volume),
		"no_crosses", s.Stats.NoCrosses,
		"friends_added", humanize.Comma(s.Stats.FriendsAdded),
	}
	for i, m := range s.Markets {
		attrs = append(attrs, fmt.Sprintf("price_%d", i), fmt.Sprintf("%.4f", m.Price()))
	}
	slog.Info("step report", attrs...)
}

// IsInvariantViolation reports whether err stems from a broken agent
// invariant.
func IsInvariantViolation(err error) bool {
	var inv *agents.InvariantError
	return errors.As(err, &inv)
}
