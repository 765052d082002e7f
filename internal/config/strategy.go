package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"holidaysjp/internal/model"
)

// Strategy selects how the refresh policy decides whether to redownload.
// The set is closed; any other value fails validation.
type Strategy string

const (
	StrategyAlwaysRefresh Strategy = "AlwaysRefresh"
	StrategyNeverRefresh  Strategy = "NeverRefresh"
	StrategyTimeBased     Strategy = "TimeBased"
	StrategyETagBased     Strategy = "EtagBased"
	StrategyHybrid        Strategy = "Hybrid"
)

// Strategies lists every strategy, cheapest and most stale-tolerant first.
var Strategies = []Strategy{
	StrategyNeverRefresh,
	StrategyTimeBased,
	StrategyETagBased,
	StrategyHybrid,
	StrategyAlwaysRefresh,
}

func (s Strategy) Valid() bool {
	for _, v := range Strategies {
		if s == v {
			return true
		}
	}
	return false
}

func (s Strategy) String() string { return string(s) }

// ParseStrategy accepts the canonical names case-insensitively, with or
// without underscores/dashes ("Hybrid", "time_based", "etag-based").
func ParseStrategy(s string) (Strategy, error) {
	folded := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Strategies {
		if strings.ToLower(string(v)) == folded {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown strategy %q (want one of %s)", model.ErrConfig, s, strategyList())
}

// UnmarshalYAML canonicalizes the strategy name. Empty stays empty so
// Normalize can apply the default.
func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*s = ""
		return nil
	}
	parsed, err := ParseStrategy(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func strategyList() string {
	names := make([]string, 0, len(Strategies))
	for _, v := range Strategies {
		names = append(names, string(v))
	}
	return strings.Join(names, ", ")
}
