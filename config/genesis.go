package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"epochvault/crypto"
)

// Genesis seeds an empty store: the token registry and initial balances.
type Genesis struct {
	ChainID uint64                       `yaml:"chain_id"`
	Tokens  []TokenSpec                  `yaml:"tokens"`
	Alloc   map[string]map[string]string `yaml:"alloc"`
	// ModuleAlloc credits module accounts, keyed by module seed.
	ModuleAlloc map[string]map[string]string `yaml:"module_alloc"`
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// Allocation is one resolved genesis credit.
type Allocation struct {
	Account [20]byte
	Token   string
	Amount  *big.Int
}

// LoadGenesis reads and validates a YAML genesis document.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes and validates a YAML genesis document.
func ParseGenesis(data []byte) (*Genesis, error) {
	g := new(Genesis)
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("genesis: decode: %w", err)
	}
	if _, err := g.Allocations(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Genesis) tokenSet() (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(g.Tokens))
	for _, tok := range g.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(tok.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("genesis: token symbol required")
		}
		if _, dup := set[symbol]; dup {
			return nil, fmt.Errorf("genesis: duplicate token %s", symbol)
		}
		set[symbol] = struct{}{}
	}
	return set, nil
}

// Allocations resolves every credit in a deterministic order.
func (g *Genesis) Allocations() ([]Allocation, error) {
	tokens, err := g.tokenSet()
	if err != nil {
		return nil, err
	}
	var out []Allocation
	add := func(owner string, account [20]byte, balances map[string]string) error {
		for symbol, raw := range balances {
			normalized := strings.ToUpper(strings.TrimSpace(symbol))
			if _, ok := tokens[normalized]; !ok {
				return fmt.Errorf("genesis: %s allocates unknown token %s", owner, symbol)
			}
			amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
			if !ok || amount.Sign() < 0 {
				return fmt.Errorf("genesis: %s has invalid %s amount %q", owner, symbol, raw)
			}
			out = append(out, Allocation{Account: account, Token: normalized, Amount: amount})
		}
		return nil
	}
	for owner, balances := range g.Alloc {
		account, err := crypto.ParseAccount(owner)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: %w", owner, err)
		}
		if err := add(owner, account, balances); err != nil {
			return nil, err
		}
	}
	for seed, balances := range g.ModuleAlloc {
		if strings.TrimSpace(seed) == "" {
			return nil, fmt.Errorf("genesis: module seed required")
		}
		if err := add("module "+seed, crypto.ModuleAddress(seed), balances); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return string(out[i].Account[:]) < string(out[j].Account[:])
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}
