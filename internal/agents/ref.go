package agents

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind distinguishes the two kinds of influence source.
type RefKind uint8

const (
	RefAgent RefKind = iota
	RefFundamentalist
)

func (k RefKind) String() string {
	switch k {
	case RefAgent:
		return "agent"
	case RefFundamentalist:
		return "fundamentalist"
	default:
		return "unknown"
	}
}

// Ref names an influence source: an agent or a fundamentalist.
// Resolve it through Collection.Beliefs.
type Ref struct {
	Kind  RefKind
	Index int
}

// AgentRef refers to the agent with the given id.
func AgentRef(id AgentID) Ref { return Ref{Kind: RefAgent, Index: int(id)} }

// FundamentalistRef refers to the i-th fundamentalist.
func FundamentalistRef(i int) Ref { return Ref{Kind: RefFundamentalist, Index: i} }

func (r Ref) String() string {
	return r.Kind.String() + ":" + strconv.Itoa(r.Index)
}

// MarshalText renders refs as "agent:12" in JSON output.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (r *Ref) UnmarshalText(b []byte) error {
	kind, idx, ok := strings.Cut(string(b), ":")
	if !ok {
		return fmt.Errorf("invalid ref %q", b)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return fmt.Errorf("invalid ref index %q: %w", idx, err)
	}
	switch kind {
	case "agent":
		*r = Ref{Kind: RefAgent, Index: n}
	case "fundamentalist":
		*r = Ref{Kind: RefFundamentalist, Index: n}
	default:
		return fmt.Errorf("invalid ref kind %q", kind)
	}
	return nil
}
