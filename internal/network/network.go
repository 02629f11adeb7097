// Package network is the per-deployment address book: factory, native wrapper,
// whitelist, stablecoin pairs and pricing thresholds.
package network

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var networksYAML []byte

var ErrUnknownNetwork = errors.New("unknown network")

// StablePairs are the stablecoin/native-wrapper pairs with the native wrapper as token0.
type StablePairs struct {
	DAI  common.Address
	USDC common.Address
	USDT common.Address
}

// TokenInfo is static metadata for tokens whose contracts cannot be read through
// the standard ERC20 string ABI.
type TokenInfo struct {
	Symbol   string
	Name     string
	Decimals int32
}

// Network is one deployment. The zero value stands for an unknown network: zero
// addresses, an empty whitelist and zero thresholds.
type Network struct {
	Name          string
	Factory       common.Address
	NativeWrapper common.Address
	Whitelist     []common.Address
	StablePairs   StablePairs
	// FixedPeg networks price the native currency at exactly 1 USD.
	FixedPeg bool

	MinimumLiquidityThresholdNative decimal.Decimal
	MinimumUSDThresholdNewPairs     decimal.Decimal

	Tokens map[common.Address]TokenInfo

	whitelisted map[common.Address]struct{}
}

// Known reports whether the address book has an entry for this network.
func (n *Network) Known() bool {
	return n != nil && n.Factory != (common.Address{})
}

// IsWhitelisted reports whether addr is a liquidity tracking token.
func (n *Network) IsWhitelisted(addr common.Address) bool {
	_, ok := n.whitelisted[addr]
	return ok
}

// StablePairAddresses returns the configured stablecoin pairs, skipping unset ones.
func (n *Network) StablePairAddresses() []common.Address {
	var out []common.Address
	for _, a := range []common.Address{n.StablePairs.DAI, n.StablePairs.USDC, n.StablePairs.USDT} {
		if a != (common.Address{}) {
			out = append(out, a)
		}
	}
	return out
}

// WithThresholds returns a copy with the pricing thresholds replaced. Empty
// strings keep the address book value.
func (n Network) WithThresholds(minLiquidityNative, minUSDNewPairs string) (Network, error) {
	if minLiquidityNative != "" {
		d, err := decimal.NewFromString(minLiquidityNative)
		if err != nil {
			return n, fmt.Errorf("invalid minimum liquidity threshold: %w", err)
		}
		n.MinimumLiquidityThresholdNative = d
	}
	if minUSDNewPairs != "" {
		d, err := decimal.NewFromString(minUSDNewPairs)
		if err != nil {
			return n, fmt.Errorf("invalid minimum USD threshold: %w", err)
		}
		n.MinimumUSDThresholdNewPairs = d
	}
	return n, nil
}

type rawBook struct {
	Networks map[string]rawNetwork `yaml:"networks"`
}

type rawNetwork struct {
	Aliases       []string          `yaml:"aliases"`
	Factory       string            `yaml:"factory"`
	NativeWrapper string            `yaml:"native_wrapper"`
	FixedPeg      bool              `yaml:"fixed_peg"`
	MinLiquidity  string            `yaml:"minimum_liquidity_threshold_native"`
	MinUSD        string            `yaml:"minimum_usd_threshold_new_pairs"`
	StablePairs   map[string]string `yaml:"stable_pairs"`
	Whitelist     []string          `yaml:"whitelist"`
	Tokens        map[string]struct {
		Symbol   string `yaml:"symbol"`
		Name     string `yaml:"name"`
		Decimals int32  `yaml:"decimals"`
	} `yaml:"tokens"`
}

var (
	loadOnce sync.Once
	book     map[string]*Network
	loadErr  error
)

// Parse decodes an address book document, keyed by network name and alias.
func Parse(data []byte) (map[string]*Network, error) {
	var raw rawBook
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse address book: %w", err)
	}

	out := make(map[string]*Network)
	for name, r := range raw.Networks {
		n, err := r.build(name)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", name, err)
		}
		out[name] = n
		for _, alias := range r.Aliases {
			out[alias] = n
		}
	}
	return out, nil
}

func (r rawNetwork) build(name string) (*Network, error) {
	n := &Network{
		Name:        name,
		FixedPeg:    r.FixedPeg,
		Tokens:      make(map[common.Address]TokenInfo),
		whitelisted: make(map[common.Address]struct{}),
	}

	var err error
	if n.Factory, err = parseAddress(r.Factory); err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	if n.NativeWrapper, err = parseAddress(r.NativeWrapper); err != nil {
		return nil, fmt.Errorf("native wrapper: %w", err)
	}
	for field, dst := range map[string]*common.Address{
		"dai": &n.StablePairs.DAI, "usdc": &n.StablePairs.USDC, "usdt": &n.StablePairs.USDT,
	} {
		if v, ok := r.StablePairs[field]; ok {
			if *dst, err = parseAddress(v); err != nil {
				return nil, fmt.Errorf("stable pair %s: %w", field, err)
			}
		}
	}
	for _, w := range r.Whitelist {
		addr, err := parseAddress(w)
		if err != nil {
			return nil, fmt.Errorf("whitelist: %w", err)
		}
		n.Whitelist = append(n.Whitelist, addr)
		n.whitelisted[addr] = struct{}{}
	}
	for a, t := range r.Tokens {
		addr, err := parseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		n.Tokens[addr] = TokenInfo{Symbol: t.Symbol, Name: t.Name, Decimals: t.Decimals}
	}

	if n.MinimumLiquidityThresholdNative, err = decimal.NewFromString(orZero(r.MinLiquidity)); err != nil {
		return nil, fmt.Errorf("minimum liquidity threshold: %w", err)
	}
	if n.MinimumUSDThresholdNewPairs, err = decimal.NewFromString(orZero(r.MinUSD)); err != nil {
		return nil, fmt.Errorf("minimum USD threshold: %w", err)
	}
	return n, nil
}

// parseAddress accepts any letter case; the mixed-case entries in the book must
// match the lowercase ids tokens are stored under.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func load() (map[string]*Network, error) {
	loadOnce.Do(func() {
		book, loadErr = Parse(networksYAML)
	})
	return book, loadErr
}

// Resolve returns the named network. Unknown names yield a zero Network (so
// every address is the zero address) together with ErrUnknownNetwork.
func Resolve(name string) (*Network, error) {
	networks, err := load()
	if err != nil {
		return nil, err
	}
	if n, ok := networks[strings.ToLower(name)]; ok {
		return n, nil
	}
	return &Network{Name: name}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
}

// Names lists the resolvable network names, aliases included.
func Names() []string {
	networks, err := load()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
