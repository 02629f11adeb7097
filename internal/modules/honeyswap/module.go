// Package honeyswap derives the Honeyswap accounting model (pairs, tokens,
// liquidity positions, mint/burn/swap records and day buckets) from factory and
// pair events.
package honeyswap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/network"
	"github.com/1hive/honeyswap-indexer/internal/prices"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Manifest context keys that override the address book thresholds.
const (
	ContextMinimumLiquidityThreshold = "minimumLiquidityThresholdNative"
	ContextMinimumUSDThreshold       = "minimumUSDThresholdNewPairs"
)

// EventHandler applies one decoded event through tx.
type EventHandler func(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error

// Options wires the module's collaborators.
type Options struct {
	// Pairs answers getPair for the oracle. Defaults to the store registry.
	Pairs prices.PairRegistry
	// Balances decides position balances. Defaults to the ledger.
	Balances BalanceReader
	// Tokens reads metadata for new tokens. Without it only tokens listed in
	// the address book can be created.
	Tokens TokenReader
}

// Module implements core.Module for the Honeyswap factory and its pairs.
type Module struct {
	manifest *core.Manifest
	network  *network.Network
	logger   zerolog.Logger
	parser   *core.EventParser

	factoryID      string
	factoryAddress common.Address

	oracle   *prices.Oracle
	tracker  *prices.Tracker
	balances BalanceReader
	tokens   TokenReader

	handlers map[common.Hash]EventHandler
}

// NewModule builds the module for the manifest's network. An unknown network is
// not an error: the module is created and skips every event with a warning.
func NewModule(manifest *core.Manifest, opts Options, logger zerolog.Logger) (*Module, error) {
	if manifest == nil {
		return nil, errors.New("manifest is required")
	}
	logger = logger.With().Str("module", manifest.Name).Logger()

	net, err := network.Resolve(manifest.Network())
	if err != nil {
		if !errors.Is(err, network.ErrUnknownNetwork) {
			return nil, fmt.Errorf("failed to resolve network: %w", err)
		}
		logger.Warn().Str("network", manifest.Network()).Msg("Network has no address book entry, events will be skipped")
	}

	minLiquidity, _ := manifest.ContextString(ContextMinimumLiquidityThreshold)
	minUSD, _ := manifest.ContextString(ContextMinimumUSDThreshold)
	tuned, err := net.WithThresholds(minLiquidity, minUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module context: %w", err)
	}
	net = &tuned

	factoryAddress := net.Factory
	if ds, ok := manifest.FindDataSource("Factory"); ok && ds.Source.Address != nil {
		configured := common.HexToAddress(*ds.Source.Address)
		if net.Known() && configured != net.Factory {
			logger.Warn().
				Str("manifest", configured.Hex()).
				Str("network", net.Factory.Hex()).
				Msg("Manifest factory differs from address book, using manifest address for filtering")
		}
		factoryAddress = configured
	}

	pairs := opts.Pairs
	if pairs == nil {
		pairs = prices.NewStoreRegistry()
	}
	balances := opts.Balances
	if balances == nil {
		balances = LedgerBalances{}
	}

	m := &Module{
		manifest:       manifest,
		network:        net,
		logger:         logger,
		parser:         core.NewEventParser(),
		factoryID:      entity.AddressID(net.Factory),
		factoryAddress: factoryAddress,
		oracle:         prices.NewOracle(net, pairs, logger),
		tracker:        prices.NewTracker(net),
		balances:       balances,
		tokens:         opts.Tokens,
		handlers:       make(map[common.Hash]EventHandler),
	}
	m.parser.AddABI(&FactoryABI)
	m.parser.AddABI(&PairABI)
	m.registerEventHandlers()

	logger.Info().
		Str("network", net.Name).
		Str("factory", m.factoryID).
		Int("whitelist", len(net.Whitelist)).
		Bool("fixed_peg", net.FixedPeg).
		Msg("Honeyswap module initialized")

	return m, nil
}

func (m *Module) registerEventHandlers() {
	m.handlers[FactoryABI.Events["PairCreated"].ID] = handleNewPair
	m.handlers[PairABI.Events["Transfer"].ID] = handleTransfer
	m.handlers[PairABI.Events["Sync"].ID] = handleSync
	m.handlers[PairABI.Events["Mint"].ID] = handleMint
	m.handlers[PairABI.Events["Burn"].ID] = handleBurn
	m.handlers[PairABI.Events["Swap"].ID] = handleSwap
}

func (m *Module) Name() string { return m.manifest.Name }

func (m *Module) Version() string { return m.manifest.Version }

func (m *Module) Manifest() *core.Manifest { return m.manifest }

// Network is the resolved address book entry, thresholds included.
func (m *Module) Network() *network.Network { return m.network }

// FactoryAddress is the contract whose PairCreated events are followed.
func (m *Module) FactoryAddress() common.Address { return m.factoryAddress }

// EventFilters lists PairCreated on the factory and the pair events from any emitter.
func (m *Module) EventFilters() []core.EventFilter {
	filters := []core.EventFilter{{
		Address: m.factoryAddress.Hex(),
		Topic0:  PairCreatedTopic().Hex(),
	}}
	for _, topic := range PairTopics() {
		filters = append(filters, core.EventFilter{Topic0: topic.Hex()})
	}
	return filters
}

// HandleEvent decodes and applies one event. Events that cannot be applied are
// logged by class and their writes discarded; only store failures are returned.
func (m *Module) HandleEvent(ctx context.Context, tx *store.Batch, raw *core.RawEvent) error {
	if len(raw.Log.Topics) == 0 {
		return nil
	}
	handler, ok := m.handlers[raw.Log.Topics[0]]
	if !ok {
		return nil
	}
	start := time.Now()

	if !m.network.Known() {
		return m.settle(tx, raw, "unknown", start, UnresolvableNetworkError{Network: m.network.Name})
	}

	event, err := m.parser.ParseEvent(raw)
	if err != nil {
		return m.settle(tx, raw, "unknown", start, MalformedEventError{Event: raw.Log.Topics[0].Hex(), Err: err})
	}

	// another factory's PairCreated
	if event.EventName == "PairCreated" && event.Address != m.factoryAddress {
		return nil
	}

	return m.settle(tx, raw, event.EventName, start, handler(ctx, m, tx, event))
}

func (m *Module) settle(tx *store.Batch, raw *core.RawEvent, name string, start time.Time, err error) error {
	elapsed := time.Since(start)
	if err == nil {
		metrics.RecordEvent(name, "ok", elapsed)
		return nil
	}

	tx.Discard()
	if store.IsBackendError(err) {
		metrics.RecordEvent(name, "failed", elapsed)
		return err
	}

	class, level := classify(err)
	metrics.RecordEvent(name, "skipped", elapsed)
	metrics.RecordSkip(class)
	m.logger.WithLevel(level).
		Err(err).
		Str("event", name).
		Str("class", class).
		Str("address", strings.ToLower(raw.Log.Address.Hex())).
		Uint64("block", raw.Log.BlockNumber).
		Uint("log_index", raw.Log.Index).
		Str("tx_hash", raw.Log.TxHash.Hex()).
		Msg("Skipping event")
	return nil
}

var _ core.Module = (*Module)(nil)
