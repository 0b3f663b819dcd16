package agents

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/talgya/gossip-market/internal/config"
)

func newAgent(id AgentID, markets int) *Agent {
	return &Agent{
		ID:               id,
		Assets:           make([]int, markets),
		Beliefs:          make([]float64, markets),
		OrderProbability: make([]float64, markets),
	}
}

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustCollection(t fataler, ag []*Agent, funds []Fundamentalist, markets int) *Collection {
	t.Helper()
	c, err := NewCollection(ag, funds, markets)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	return c
}

func TestApplyBuySell(t *testing.T) {
	a := newAgent(0, 2)
	a.Cash = 100
	a.Assets[1] = 3

	if err := a.ApplyBuy(0, 4, 10); err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}
	if a.Cash != 60 || a.Assets[0] != 4 {
		t.Fatalf("after buy cash=%v assets=%v", a.Cash, a.Assets)
	}
	if err := a.ApplySell(1, 3, 5); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if a.Cash != 75 || a.Assets[1] != 0 {
		t.Fatalf("after sell cash=%v assets=%v", a.Cash, a.Assets)
	}
}

func TestApplyBuyCashUnderflowIsFatal(t *testing.T) {
	a := newAgent(7, 1)
	a.Cash = 10

	err := a.ApplyBuy(0, 2, 6)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
	if inv.Kind != CashUnderflow || inv.Agent != 7 || inv.Need != 12 {
		t.Fatalf("unexpected error %+v", inv)
	}
	if a.Cash != 10 || a.Assets[0] != 0 {
		t.Fatalf("state mutated on failure: cash=%v assets=%v", a.Cash, a.Assets)
	}

	// A sub-micro overdraw is still fatal, never clamped to zero.
	err = a.ApplyBuy(0, 1, 10.0000009)
	if !errors.As(err, &inv) || inv.Kind != CashUnderflow {
		t.Fatalf("expected cash underflow for tiny overdraw, got %v", err)
	}
	if a.Cash != 10 || a.Assets[0] != 0 {
		t.Fatalf("tiny overdraw mutated state: cash=%v assets=%v", a.Cash, a.Assets)
	}

	if err := a.ApplyBuy(0, 1, 10); err != nil {
		t.Fatalf("exact spend rejected: %v", err)
	}
	if a.Cash != 0 || a.Assets[0] != 1 {
		t.Fatalf("after exact spend cash=%v assets=%v", a.Cash, a.Assets)
	}
}

func TestApplySellAssetUnderflowIsFatal(t *testing.T) {
	a := newAgent(3, 2)
	a.Assets[1] = 1

	err := a.ApplySell(1, 2, 1)
	var inv *InvariantError
	if !errors.As(err, &inv) || inv.Kind != AssetUnderflow || inv.Market != 1 {
		t.Fatalf("expected asset underflow, got %v", err)
	}
}

func TestFriendQueueIsBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := newAgent(0, 1)
		a.MaxFriends = rapid.IntRange(0, 6).Draw(t, "maxFriends")
		adds := rapid.SliceOf(rapid.IntRange(0, 10)).Draw(t, "adds")

		for _, idx := range adds {
			a.addFriend(AgentRef(AgentID(idx)))
			if len(a.Friends) > a.MaxFriends {
				t.Fatalf("friends %d exceed max %d", len(a.Friends), a.MaxFriends)
			}
		}
		seen := make(map[Ref]bool)
		for _, f := range a.Friends {
			if seen[f] {
				t.Fatalf("duplicate friend %v", f)
			}
			seen[f] = true
		}
	})
}

func TestFriendQueueEvictsOldest(t *testing.T) {
	a := newAgent(0, 1)
	a.MaxFriends = 2
	a.addFriend(AgentRef(1))
	a.addFriend(AgentRef(2))
	a.addFriend(AgentRef(3))

	want := []Ref{AgentRef(2), AgentRef(3)}
	if !reflect.DeepEqual(a.Friends, want) {
		t.Fatalf("friends = %v, want %v", a.Friends, want)
	}

	a.addFriend(AgentRef(2))
	want = []Ref{AgentRef(3), AgentRef(2)}
	if !reflect.DeepEqual(a.Friends, want) {
		t.Fatalf("refreshed friends = %v, want %v", a.Friends, want)
	}
}

func TestDiffuseReadsPreviousBeliefs(t *testing.T) {
	a0, a1 := newAgent(0, 1), newAgent(1, 1)
	for _, a := range []*Agent{a0, a1} {
		a.InfluenceProbability = 1
		a.InfluencerCount = 1
	}
	a0.Beliefs[0] = 1
	a1.Beliefs[0] = 0
	c := mustCollection(t, []*Agent{a0, a1}, nil, 1)

	res := c.Diffuse(0, rand.New(rand.NewSource(1)))
	if res.Influenced != 2 || res.Influencers != 2 {
		t.Fatalf("result = %+v", res)
	}
	// Each agent's only candidate is the other; with a snapshot they swap.
	if a0.Beliefs[0] != 0 || a1.Beliefs[0] != 1 {
		t.Fatalf("beliefs = %v, %v; want swapped", a0.Beliefs, a1.Beliefs)
	}
	if len(a0.Pending) != 1 || a0.Pending[0].Source != AgentRef(1) || a0.Pending[0].Beliefs[0] != 0 {
		t.Fatalf("pending = %+v", a0.Pending)
	}
}

func TestDiffuseFromFundamentalist(t *testing.T) {
	a := newAgent(0, 2)
	a.InfluenceProbability = 1
	a.InfluencerCount = 1
	funds := []Fundamentalist{{Index: 0, Beliefs: []float64{1, 0}}}
	c := mustCollection(t, []*Agent{a}, funds, 2)

	c.Diffuse(4, rand.New(rand.NewSource(9)))
	if !reflect.DeepEqual(a.Beliefs, []float64{1, 0}) {
		t.Fatalf("beliefs = %v", a.Beliefs)
	}
	if len(a.Pending) != 1 || a.Pending[0].Source != FundamentalistRef(0) || a.Pending[0].Step != 4 {
		t.Fatalf("pending = %+v", a.Pending)
	}
	// The snapshot is a copy, not an alias of the source vector.
	a.Pending[0].Beliefs[0] = 0.5
	if funds[0].Beliefs[0] != 1 {
		t.Fatal("pending snapshot aliases fundamentalist beliefs")
	}
}

func TestConsensusRoundsHalfUp(t *testing.T) {
	cases := map[float64]float64{0: 0, 0.49: 0, 0.5: 1, 0.51: 1, 1: 1}
	for in, want := range cases {
		if got := consensus(in); got != want {
			t.Errorf("consensus(%v) = %v, want %v", in, got, want)
		}
	}
}

func spawnCollection(t fataler, seed int64, agents, funds, markets int) *Collection {
	t.Helper()
	cfg := config.Default().Agent
	cfg.InitialBelief = config.Uniform(0, 1)
	cfg.InfluencerCount = config.Rounded(config.Uniform(1, 4))
	s := NewSpawner(cfg, markets, rand.New(rand.NewSource(seed)))
	return mustCollection(t, s.SpawnPopulation(agents), s.SpawnFundamentalists(funds), markets)
}

func TestDiffusionIsDeterministic(t *testing.T) {
	c1 := spawnCollection(t, 11, 60, 6, 3)
	c2 := spawnCollection(t, 11, 60, 6, 3)

	c1.Diffuse(0, rand.New(rand.NewSource(5)))
	c2.Diffuse(0, rand.New(rand.NewSource(5)))

	for i := range c1.Agents() {
		if !reflect.DeepEqual(c1.Agents()[i].Beliefs, c2.Agents()[i].Beliefs) {
			t.Fatalf("agent %d beliefs differ: %v vs %v", i, c1.Agents()[i].Beliefs, c2.Agents()[i].Beliefs)
		}
	}
}

func TestBeliefsStayInUnitInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		n := rapid.IntRange(1, 30).Draw(t, "agents")
		f := rapid.IntRange(0, 5).Draw(t, "fundamentalists")
		c := spawnCollection(t, seed, n, f, 2)
		rng := rand.New(rand.NewSource(seed))

		for step := 0; step < 5; step++ {
			c.Diffuse(step, rng)
			for _, a := range c.Agents() {
				for m, b := range a.Beliefs {
					if b < 0 || b > 1 {
						t.Fatalf("agent %d market %d belief %v", a.ID, m, b)
					}
				}
			}
		}
	})
}

type fakeTape []float64

func (f fakeTape) Movement(m MarketID, delay int) (float64, bool) {
	if int(m) >= len(f) {
		return 0, false
	}
	return f[m], true
}

func TestReflectPromotesCorrelatedSource(t *testing.T) {
	a := newAgent(0, 3)
	a.ReflectionDelay = 2
	a.FriendThreshold = 0.9
	a.MaxFriends = 3
	a.Pending = []Influence{{Source: AgentRef(5), Beliefs: []float64{1, 0, 1}, Step: 0}}
	c := mustCollection(t, []*Agent{a}, nil, 3)
	tape := fakeTape{2, 0, 2}

	if res := c.Reflect(1, tape); res.Evaluated != 0 {
		t.Fatalf("evaluated before delay elapsed: %+v", res)
	}
	res := c.Reflect(2, tape)
	if res.Evaluated != 1 || res.Promoted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !a.IsFriend(AgentRef(5)) {
		t.Fatalf("friends = %v, want agent:5", a.Friends)
	}
	if len(a.Pending) != 0 {
		t.Fatalf("pending not consumed: %+v", a.Pending)
	}
}

func TestReflectSkipsDegenerateAndUncorrelated(t *testing.T) {
	a := newAgent(0, 3)
	a.ReflectionDelay = 1
	a.FriendThreshold = 0.5
	a.MaxFriends = 3
	a.Pending = []Influence{
		{Source: AgentRef(1), Beliefs: []float64{1, 1, 1}, Step: 0}, // zero variance
		{Source: AgentRef(2), Beliefs: []float64{0, 1, 0}, Step: 0}, // anti-correlated
		{Source: AgentRef(3), Beliefs: []float64{1, 0, 1}, Step: 3}, // too recent
	}
	c := mustCollection(t, []*Agent{a}, nil, 3)

	res := c.Reflect(2, fakeTape{2, 0, 2})
	if res.Evaluated != 2 || res.Skipped != 1 || res.Promoted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(a.Friends) != 0 {
		t.Fatalf("friends = %v, want none", a.Friends)
	}
	if len(a.Pending) != 1 || a.Pending[0].Source != AgentRef(3) {
		t.Fatalf("pending = %+v", a.Pending)
	}
}

func TestReflectFlatMarketNeverPromotes(t *testing.T) {
	a := newAgent(0, 2)
	a.FriendThreshold = -1
	a.MaxFriends = 2
	a.Pending = []Influence{{Source: AgentRef(1), Beliefs: []float64{1, 0}, Step: 0}}
	c := mustCollection(t, []*Agent{a}, nil, 2)

	res := c.Reflect(0, fakeTape{0, 0})
	if res.Skipped != 1 || len(a.Friends) != 0 {
		t.Fatalf("result = %+v friends = %v", res, a.Friends)
	}
}

func TestSpawnerSizesVectors(t *testing.T) {
	c := spawnCollection(t, 2, 10, 3, 4)
	if c.Len() != 10 || len(c.Fundamentalists()) != 3 {
		t.Fatalf("sizes = %d agents, %d fundamentalists", c.Len(), len(c.Fundamentalists()))
	}
	for _, a := range c.Agents() {
		if a.Cash < 0 {
			t.Fatalf("agent %d negative cash", a.ID)
		}
		for m := 0; m < 4; m++ {
			if a.Assets[m] < 0 || a.OrderProbability[m] < 0 || a.OrderProbability[m] > 1 {
				t.Fatalf("agent %d bad market %d params", a.ID, m)
			}
		}
	}
	if c.TotalAssets(0) != 300 {
		t.Fatalf("TotalAssets = %d, want 300", c.TotalAssets(0))
	}
	if c.MedianCash() != 3000 {
		t.Fatalf("MedianCash = %v, want 3000", c.MedianCash())
	}
}

func TestNewCollectionRejectsMismatch(t *testing.T) {
	if _, err := NewCollection([]*Agent{newAgent(1, 1)}, nil, 1); err == nil {
		t.Fatal("expected id mismatch error")
	}
	if _, err := NewCollection([]*Agent{newAgent(0, 2)}, nil, 1); err == nil {
		t.Fatal("expected vector size error")
	}
}

func TestRefText(t *testing.T) {
	for _, ref := range []Ref{AgentRef(12), FundamentalistRef(3)} {
		b, err := ref.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Ref
		if err := got.UnmarshalText(b); err != nil || got != ref {
			t.Fatalf("round trip %q -> %v (%v)", b, got, err)
		}
	}
	var r Ref
	if err := r.UnmarshalText([]byte("broker:1")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
