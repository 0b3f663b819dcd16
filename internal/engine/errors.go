package engine

import (
	"fmt"

	"github.com/talgya/gossip-market/internal/agents"
)

// StepError reports a fatal failure while advancing the simulation. Once a
// step fails the simulation refuses to advance further.
type StepError struct {
	Step   int
	Market agents.MarketID // -1 when the failure is not tied to a market
	Err    error
}

func (e *StepError) Error() string {
	if e.Market < 0 {
		return fmt.Sprintf("step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %d market %d: %v", e.Step, e.Market, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
