package agents

import "fmt"

// InvariantKind names a violated financial invariant.
type InvariantKind uint8

const (
	CashUnderflow InvariantKind = iota
	AssetUnderflow
)

func (k InvariantKind) String() string {
	switch k {
	case CashUnderflow:
		return "cash underflow"
	case AssetUnderflow:
		return "asset underflow"
	default:
		return "unknown invariant"
	}
}

// InvariantError reports a fill that would drive an agent's cash or assets
// negative. It means the clearing engine over-allocated volume, so callers
// must halt the run rather than recover.
type InvariantError struct {
	Kind   InvariantKind
	Agent  AgentID
	Market MarketID
	Step   int
	Have   float64
	Need   float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: agent %d market %d step %d: have %g, need %g",
		e.Kind, e.Agent, e.Market, e.Step, e.Have, e.Need)
}
