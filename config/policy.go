package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"trvault/crypto"
)

// TokenPolicy captures the reserve routing and per-strategy ceilings for one
// borrowable token, as declared in the operator's policy file.
type TokenPolicy struct {
	Token                string
	BaseStrategy         crypto.Address
	BufferThreshold      *uint256.Int
	BufferThresholdUpper *uint256.Int
	Ceilings             []StrategyCeiling
}

// StrategyCeiling grants one strategy a borrowing ceiling for the token.
type StrategyCeiling struct {
	Strategy crypto.Address
	Ceiling  *uint256.Int
}

// tokenPolicyFile mirrors the YAML representation of a policy entry.
type tokenPolicyFile struct {
	Token                string                `yaml:"token"`
	BaseStrategy         string                `yaml:"base_strategy"`
	BufferThreshold      string                `yaml:"buffer_threshold"`
	BufferThresholdUpper string                `yaml:"buffer_threshold_upper"`
	Ceilings             []strategyCeilingFile `yaml:"ceilings"`
}

type strategyCeilingFile struct {
	Strategy string `yaml:"strategy"`
	Ceiling  string `yaml:"ceiling"`
}

// LoadPolicies reads token policies from the provided YAML file on disk.
func LoadPolicies(path string) ([]TokenPolicy, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policies: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	var entries []tokenPolicyFile
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	policies := make([]TokenPolicy, 0, len(entries))
	seen := make(map[string]struct{})
	for _, entry := range entries {
		token := strings.TrimSpace(entry.Token)
		if token == "" {
			return nil, fmt.Errorf("policy token required")
		}
		if _, exists := seen[token]; exists {
			return nil, fmt.Errorf("duplicate policy for token %s", token)
		}
		seen[token] = struct{}{}
		policy := TokenPolicy{Token: token}
		if base := strings.TrimSpace(entry.BaseStrategy); base != "" {
			addr, err := crypto.DecodeAddress(base)
			if err != nil {
				return nil, fmt.Errorf("token %s base_strategy: %w", token, err)
			}
			policy.BaseStrategy = addr
		}
		if policy.BufferThreshold, err = parsePolicyAmount(entry.BufferThreshold); err != nil {
			return nil, fmt.Errorf("token %s buffer_threshold: %w", token, err)
		}
		if policy.BufferThresholdUpper, err = parsePolicyAmount(entry.BufferThresholdUpper); err != nil {
			return nil, fmt.Errorf("token %s buffer_threshold_upper: %w", token, err)
		}
		if policy.BufferThresholdUpper.Cmp(policy.BufferThreshold) < 0 {
			return nil, fmt.Errorf("token %s: buffer_threshold_upper below buffer_threshold", token)
		}
		for _, ceiling := range entry.Ceilings {
			strategyAddr := strings.TrimSpace(ceiling.Strategy)
			if strategyAddr == "" {
				return nil, fmt.Errorf("token %s: ceiling strategy required", token)
			}
			addr, err := crypto.DecodeAddress(strategyAddr)
			if err != nil {
				return nil, fmt.Errorf("token %s strategy %s: %w", token, strategyAddr, err)
			}
			amount, err := parsePolicyAmount(ceiling.Ceiling)
			if err != nil {
				return nil, fmt.Errorf("token %s strategy %s ceiling: %w", token, strategyAddr, err)
			}
			policy.Ceilings = append(policy.Ceilings, StrategyCeiling{Strategy: addr, Ceiling: amount})
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

func parsePolicyAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uint256.NewInt(0), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}
