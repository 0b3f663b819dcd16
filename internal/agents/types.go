// Package agents provides the trading agent model, the fundamentalist
// reference beliefs and the collection that runs belief diffusion.
package agents

import (
	"fmt"
)

// AgentID indexes an agent within its Collection.
type AgentID int

// MarketID indexes a traded market; per-market vectors on Agent use it.
type MarketID int

// Agent is one trader: financial state, per-market belief and the
// parameters that govern how it listens to others.
type Agent struct {
	ID AgentID `json:"id"`

	// Financial state.
	Cash   float64 `json:"cash"`
	Assets []int   `json:"assets"` // one per market

	// Beliefs holds the propensity to buy each market's asset, in [0,1].
	Beliefs []float64 `json:"beliefs"`

	// Behaviour, sampled once at creation.
	OrderProbability           []float64 `json:"order_probability"` // per market
	InfluenceProbability       float64   `json:"influence_probability"`
	InfluencerCount            int       `json:"influencer_count"`
	ReflectionDelay            int       `json:"reflection_delay"`
	MaxFriends                 int       `json:"max_friends"`
	FriendThreshold            float64   `json:"friend_threshold"`
	FriendInfluenceProbability float64   `json:"friend_influence_probability"`

	// Social state.
	Friends []Ref       `json:"friends"` // oldest first, at most MaxFriends
	Pending []Influence `json:"-"`       // oldest first
}

// Influence records one received influence awaiting reflection.
type Influence struct {
	Source  Ref
	Beliefs []float64 // source beliefs at the time of influence
	Step    int
}

// Fundamentalist is a fixed reference belief vector. It can influence agents
// but never trades and is never influenced.
type Fundamentalist struct {
	Index   int       `json:"index"`
	Beliefs []float64 `json:"beliefs"`
}

// ApplyBuy settles a buy fill: debits price*qty cash and credits qty assets.
// Any overdraw, however small, is an InvariantError and leaves a unchanged.
func (a *Agent) ApplyBuy(m MarketID, qty int, price float64) error {
	if qty < 0 {
		return fmt.Errorf("agent %d: negative buy quantity %d", a.ID, qty)
	}
	cost := price * float64(qty)
	if a.Cash-cost < 0 {
		return &InvariantError{
			Kind:   CashUnderflow,
			Agent:  a.ID,
			Market: m,
			Have:   a.Cash,
			Need:   cost,
		}
	}
	a.Cash -= cost
	a.Assets[m] += qty
	return nil
}

// ApplySell settles a sell fill: credits price*qty cash and debits qty assets.
func (a *Agent) ApplySell(m MarketID, qty int, price float64) error {
	if qty < 0 {
		return fmt.Errorf("agent %d: negative sell quantity %d", a.ID, qty)
	}
	if a.Assets[m] < qty {
		return &InvariantError{
			Kind:   AssetUnderflow,
			Agent:  a.ID,
			Market: m,
			Have:   float64(a.Assets[m]),
			Need:   float64(qty),
		}
	}
	a.Cash += price * float64(qty)
	a.Assets[m] -= qty
	return nil
}

// IsFriend reports whether ref is in the friend queue.
func (a *Agent) IsFriend(ref Ref) bool {
	for _, f := range a.Friends {
		if f == ref {
			return true
		}
	}
	return false
}

// addFriend appends ref to the friend queue, evicting the oldest friend when
// the queue exceeds MaxFriends. A friend already present moves to the back.
func (a *Agent) addFriend(ref Ref) {
	if a.MaxFriends <= 0 {
		return
	}
	for i, f := range a.Friends {
		if f == ref {
			a.Friends = append(a.Friends[:i], a.Friends[i+1:]...)
			break
		}
	}
	a.Friends = append(a.Friends, ref)
	if over := len(a.Friends) - a.MaxFriends; over > 0 {
		a.Friends = a.Friends[over:]
	}
}
