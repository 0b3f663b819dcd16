package config

import (
	"fmt"
	"math"
	"math/rand"

	"gopkg.in/yaml.v3"
)

// Distribution kinds accepted under the `distribution` key.
const (
	KindConstant  = "constant"
	KindUniform   = "uniform"
	KindNormal    = "normal"
	KindBernoulli = "bernoulli"
	KindClamped   = "clamped"
	KindRounded   = "rounded"
)

// Distribution is a tagged probability distribution used to sample per-agent
// parameters at creation. Only the fields of the selected kind are read.
//
// Clamped and Rounded wrap Inner, so they compose:
//
//	reflection_delay:
//	  distribution: rounded
//	  inner:
//	    distribution: clamped
//	    min: 1
//	    max: 20
//	    inner: {distribution: normal, mean: 5, sd: 2}
type Distribution struct {
	Kind  string        `yaml:"distribution" toml:"distribution" json:"distribution"`
	Value float64       `yaml:"value,omitempty" toml:"value,omitempty" json:"value,omitempty"`
	Start float64       `yaml:"start,omitempty" toml:"start,omitempty" json:"start,omitempty"`
	End   float64       `yaml:"end,omitempty" toml:"end,omitempty" json:"end,omitempty"`
	Mean  float64       `yaml:"mean,omitempty" toml:"mean,omitempty" json:"mean,omitempty"`
	SD    float64       `yaml:"sd,omitempty" toml:"sd,omitempty" json:"sd,omitempty"`
	P     float64       `yaml:"p,omitempty" toml:"p,omitempty" json:"p,omitempty"`
	Min   float64       `yaml:"min,omitempty" toml:"min,omitempty" json:"min,omitempty"`
	Max   float64       `yaml:"max,omitempty" toml:"max,omitempty" json:"max,omitempty"`
	Inner *Distribution `yaml:"inner,omitempty" toml:"inner,omitempty" json:"inner,omitempty"`
}

func Constant(v float64) Distribution { return Distribution{Kind: KindConstant, Value: v} }

func Uniform(start, end float64) Distribution {
	return Distribution{Kind: KindUniform, Start: start, End: end}
}

func Normal(mean, sd float64) Distribution {
	return Distribution{Kind: KindNormal, Mean: mean, SD: sd}
}

func Bernoulli(p float64) Distribution { return Distribution{Kind: KindBernoulli, P: p} }

// Clamped limits samples of inner to [lo, hi].
func Clamped(inner Distribution, lo, hi float64) Distribution {
	return Distribution{Kind: KindClamped, Min: lo, Max: hi, Inner: &inner}
}

// Rounded rounds samples of inner to the nearest integer.
func Rounded(inner Distribution) Distribution {
	return Distribution{Kind: KindRounded, Inner: &inner}
}

// UnmarshalYAML decodes into a fresh value so a file entry never inherits
// fields from the distribution it replaces.
func (d *Distribution) UnmarshalYAML(value *yaml.Node) error {
	type plain Distribution
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = Distribution(p)
	return nil
}

// Sample draws one value.
func (d Distribution) Sample(rng *rand.Rand) float64 {
	switch d.Kind {
	case KindConstant:
		return d.Value
	case KindUniform:
		return d.Start + rng.Float64()*(d.End-d.Start)
	case KindNormal:
		if d.SD <= 0 {
			return d.Mean
		}
		return d.Mean + rng.NormFloat64()*d.SD
	case KindBernoulli:
		if rng.Float64() < d.P {
			return 1
		}
		return 0
	case KindClamped:
		return math.Min(d.Max, math.Max(d.Min, d.Inner.Sample(rng)))
	case KindRounded:
		return math.Round(d.Inner.Sample(rng))
	default:
		return 0
	}
}

// SampleInt draws one value and converts it to a non-negative integer.
func (d Distribution) SampleInt(rng *rand.Rand) int {
	v := math.Round(d.Sample(rng))
	if v < 0 {
		return 0
	}
	return int(v)
}

// SampleUnit draws one value clamped to [0, 1].
func (d Distribution) SampleUnit(rng *rand.Rand) float64 {
	return math.Min(1, math.Max(0, d.Sample(rng)))
}

// Validate checks the parameters of d and any wrapped distribution.
func (d Distribution) Validate() error {
	switch d.Kind {
	case KindConstant:
		return nil
	case KindUniform:
		if d.End < d.Start {
			return fmt.Errorf("uniform: end %v below start %v", d.End, d.Start)
		}
	case KindNormal:
		if d.SD < 0 {
			return fmt.Errorf("normal: negative sd %v", d.SD)
		}
	case KindBernoulli:
		if d.P < 0 || d.P > 1 {
			return fmt.Errorf("bernoulli: p %v outside [0,1]", d.P)
		}
	case KindClamped:
		if d.Inner == nil {
			return fmt.Errorf("clamped: missing inner distribution")
		}
		if d.Max < d.Min {
			return fmt.Errorf("clamped: max %v below min %v", d.Max, d.Min)
		}
		return d.Inner.Validate()
	case KindRounded:
		if d.Inner == nil {
			return fmt.Errorf("rounded: missing inner distribution")
		}
		return d.Inner.Validate()
	case "":
		return fmt.Errorf("missing distribution kind")
	default:
		return fmt.Errorf("unknown distribution %q", d.Kind)
	}
	return nil
}
