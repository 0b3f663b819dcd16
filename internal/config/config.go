// Package config defines simulation parameters and loads them from YAML or
// TOML files, with environment overrides for the common knobs.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full parameter set of a simulation run.
type Config struct {
	Market     MarketConfig     `yaml:"market" toml:"market" json:"market"`
	Agent      AgentConfig      `yaml:"agent" toml:"agent" json:"agent"`
	Simulation SimulationConfig `yaml:"simulation" toml:"simulation" json:"simulation"`
}

// MarketConfig parameterizes every traded market.
type MarketConfig struct {
	MarketCount       int     `yaml:"market_count" toml:"market_count" json:"market_count"`
	InitialPrice      float64 `yaml:"initial_price" toml:"initial_price" json:"initial_price"`
	InitialVolatility float64 `yaml:"initial_volatility" toml:"initial_volatility" json:"initial_volatility"`
	PriceHistoryCount int     `yaml:"price_history_count" toml:"price_history_count" json:"price_history_count"`
}

// AgentConfig holds population sizes and the distributions every agent
// parameter is sampled from.
type AgentConfig struct {
	AgentCount          int `yaml:"agent_count" toml:"agent_count" json:"agent_count"`
	FundamentalistCount int `yaml:"fundamentalist_count" toml:"fundamentalist_count" json:"fundamentalist_count"`

	InitialCash                Distribution `yaml:"initial_cash" toml:"initial_cash" json:"initial_cash"`
	InitialAssets              Distribution `yaml:"initial_assets" toml:"initial_assets" json:"initial_assets"`
	InitialBelief              Distribution `yaml:"initial_belief" toml:"initial_belief" json:"initial_belief"`
	FundamentalistBelief       Distribution `yaml:"fundamentalist_belief" toml:"fundamentalist_belief" json:"fundamentalist_belief"`
	OrderProbability           Distribution `yaml:"order_probability" toml:"order_probability" json:"order_probability"`
	InfluenceProbability       Distribution `yaml:"influence_probability" toml:"influence_probability" json:"influence_probability"`
	InfluencerCount            Distribution `yaml:"influencer_count" toml:"influencer_count" json:"influencer_count"`
	ReflectionDelay            Distribution `yaml:"reflection_delay" toml:"reflection_delay" json:"reflection_delay"`
	FriendThreshold            Distribution `yaml:"friend_threshold" toml:"friend_threshold" json:"friend_threshold"`
	MaxFriends                 Distribution `yaml:"max_friends" toml:"max_friends" json:"max_friends"`
	FriendInfluenceProbability Distribution `yaml:"friend_influence_probability" toml:"friend_influence_probability" json:"friend_influence_probability"`
}

// SimulationConfig controls run length and reproducibility.
type SimulationConfig struct {
	Seed        int64 `yaml:"seed" toml:"seed" json:"seed"` // 0 draws a random seed
	RunLength   int   `yaml:"run_length" toml:"run_length" json:"run_length"`
	Repetitions int   `yaml:"repetitions" toml:"repetitions" json:"repetitions"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Market: MarketConfig{
			MarketCount:       3,
			InitialPrice:      100,
			InitialVolatility: 0.003,
			PriceHistoryCount: 20,
		},
		Agent: AgentConfig{
			AgentCount:                 1000,
			FundamentalistCount:        100,
			InitialCash:                Clamped(Normal(3000, 0), 0, 1e12),
			InitialAssets:              Constant(30),
			InitialBelief:              Bernoulli(0.5),
			FundamentalistBelief:       Bernoulli(0.5),
			OrderProbability:           Constant(1.0),
			InfluenceProbability:       Constant(0.8),
			InfluencerCount:            Constant(1),
			ReflectionDelay:            Rounded(Clamped(Normal(5, 2), 1, 20)),
			FriendThreshold:            Uniform(0.3, 0.9),
			MaxFriends:                 Rounded(Clamped(Normal(5, 2), 0, 15)),
			FriendInfluenceProbability: Uniform(0.1, 0.6),
		},
		Simulation: SimulationConfig{
			Seed:        0,
			RunLength:   10000,
			Repetitions: 1,
		},
	}
}

type namedDistribution struct {
	name string
	d    *Distribution
}

// distributions lists every sampled parameter in declaration order.
func (a *AgentConfig) distributions() []namedDistribution {
	return []namedDistribution{
		{"initial_cash", &a.InitialCash},
		{"initial_assets", &a.InitialAssets},
		{"initial_belief", &a.InitialBelief},
		{"fundamentalist_belief", &a.FundamentalistBelief},
		{"order_probability", &a.OrderProbability},
		{"influence_probability", &a.InfluenceProbability},
		{"influencer_count", &a.InfluencerCount},
		{"reflection_delay", &a.ReflectionDelay},
		{"friend_threshold", &a.FriendThreshold},
		{"max_friends", &a.MaxFriends},
		{"friend_influence_probability", &a.FriendInfluenceProbability},
	}
}

// Load reads a configuration file. The codec follows the extension: .toml
// uses TOML, anything else YAML. Missing keys keep their default values; a
// distribution present in the file replaces the default one whole, so fields
// it leaves out are zero rather than inherited.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if isTOML(path) {
		if err := decodeTOML(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("decode toml config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes cfg to path, picking the codec from the extension.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encode toml config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode yaml config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml config: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// decodeTOML merges data over cfg. Distributions named in data are cleared
// and decoded again so they do not inherit default fields.
func decodeTOML(data string, cfg *Config) error {
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return err
	}
	redo := false
	for _, nd := range cfg.Agent.distributions() {
		if md.IsDefined("agent", nd.name) {
			*nd.d = Distribution{}
			redo = true
		}
	}
	if !redo {
		return nil
	}
	_, err = toml.Decode(data, cfg)
	return err
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate checks sizes and every distribution.
func (c Config) Validate() error {
	m := c.Market
	if m.MarketCount < 1 {
		return fmt.Errorf("market.market_count must be at least 1, got %d", m.MarketCount)
	}
	if m.InitialPrice <= 0 {
		return fmt.Errorf("market.initial_price must be positive, got %v", m.InitialPrice)
	}
	if m.InitialVolatility < 0 {
		return fmt.Errorf("market.initial_volatility must be non-negative, got %v", m.InitialVolatility)
	}
	if m.PriceHistoryCount < 1 {
		return fmt.Errorf("market.price_history_count must be at least 1, got %d", m.PriceHistoryCount)
	}

	a := c.Agent
	if a.AgentCount < 0 || a.FundamentalistCount < 0 {
		return fmt.Errorf("agent counts must be non-negative")
	}
	for _, nd := range a.distributions() {
		if err := nd.d.Validate(); err != nil {
			return fmt.Errorf("agent.%s: %w", nd.name, err)
		}
	}

	if c.Simulation.RunLength < 0 {
		return fmt.Errorf("simulation.run_length must be non-negative, got %d", c.Simulation.RunLength)
	}
	if c.Simulation.Repetitions < 1 {
		return fmt.Errorf("simulation.repetitions must be at least 1, got %d", c.Simulation.Repetitions)
	}
	return nil
}

// ApplyEnv overrides common knobs from the environment:
// GENOA_SEED, GENOA_AGENT_COUNT, GENOA_FUNDAMENTALIST_COUNT,
// GENOA_MARKET_COUNT and GENOA_RUN_LENGTH.
func (c *Config) ApplyEnv() error {
	if v, ok, err := envInt64("GENOA_SEED"); err != nil {
		return err
	} else if ok {
		c.Simulation.Seed = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"GENOA_AGENT_COUNT", &c.Agent.AgentCount},
		{"GENOA_FUNDAMENTALIST_COUNT", &c.Agent.FundamentalistCount},
		{"GENOA_MARKET_COUNT", &c.Market.MarketCount},
		{"GENOA_RUN_LENGTH", &c.Simulation.RunLength},
	}
	for _, e := range ints {
		v, ok, err := envInt64(e.key)
		if err != nil {
			return err
		}
		if ok {
			*e.dst = int(v)
		}
	}
	return c.Validate()
}

func envInt64(key string) (int64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return v, true, nil
}
