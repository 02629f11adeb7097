package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/store"
)

// ErrUnknownModule is returned for names that were never registered.
var ErrUnknownModule = errors.New("module is not registered")

// ModuleStatus is the in-process state of a registered module.
type ModuleStatus string

const (
	StatusActive ModuleStatus = "active"
	StatusPaused ModuleStatus = "paused"
	StatusError  ModuleStatus = "error"
)

// ModuleRegistry routes events to the modules that declared interest in them.
type ModuleRegistry struct {
	modules map[string]Module
	status  map[string]ModuleStatus
	logger  zerolog.Logger

	eventFilters   map[string][]string // topic -> module names
	addressFilters map[string][]string // address -> module names

	mu      sync.RWMutex
	running bool
}

func NewModuleRegistry(logger zerolog.Logger) *ModuleRegistry {
	return &ModuleRegistry{
		modules:        make(map[string]Module),
		status:         make(map[string]ModuleStatus),
		logger:         logger.With().Str("component", "module_registry").Logger(),
		eventFilters:   make(map[string][]string),
		addressFilters: make(map[string][]string),
	}
}

// RegisterModule registers a new module
func (r *ModuleRegistry) RegisterModule(module Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := module.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %s is already registered", name)
	}

	manifest := module.Manifest()
	if manifest == nil {
		return fmt.Errorf("module %s has no manifest", name)
	}
	if err := manifest.ValidateManifest(); err != nil {
		return fmt.Errorf("module %s has invalid manifest: %w", name, err)
	}

	filters := module.EventFilters()
	for _, filter := range filters {
		if filter.Topic0 != "" {
			topic := strings.ToLower(filter.Topic0)
			r.eventFilters[topic] = appendUnique(r.eventFilters[topic], name)
		}
		if filter.Address != "" {
			addr := strings.ToLower(filter.Address)
			r.addressFilters[addr] = appendUnique(r.addressFilters[addr], name)
		}
	}

	r.modules[name] = module
	r.status[name] = StatusActive

	r.logger.Info().
		Str("module", name).
		Str("version", module.Version()).
		Int("filters", len(filters)).
		Msg("Module registered successfully")

	return nil
}

// Route hands an event to every interested module. Modules write through tx.
// An error from a module halts routing and marks the module as failed.
func (r *ModuleRegistry) Route(ctx context.Context, tx *store.Batch, event *RawEvent) error {
	r.mu.RLock()
	if !r.running {
		r.mu.RUnlock()
		return nil
	}
	interested := r.findInterestedModules(event)
	r.mu.RUnlock()

	for _, name := range interested {
		r.mu.RLock()
		module := r.modules[name]
		status := r.status[name]
		r.mu.RUnlock()

		if status != StatusActive {
			r.logger.Debug().
				Str("module", name).
				Str("status", string(status)).
				Msg("Skipping event for inactive module")
			continue
		}

		if err := module.HandleEvent(ctx, tx, event); err != nil {
			r.logger.Error().
				Err(err).
				Str("module", name).
				Uint64("block", event.Log.BlockNumber).
				Str("tx_hash", event.Log.TxHash.Hex()).
				Msg("Module failed to process event")
			r.setStatus(name, StatusError)
			return fmt.Errorf("module %s: %w", name, err)
		}
	}
	return nil
}

func (r *ModuleRegistry) findInterestedModules(event *RawEvent) []string {
	var interested []string
	seen := make(map[string]bool)

	if len(event.Log.Topics) > 0 {
		topic0 := strings.ToLower(event.Log.Topics[0].Hex())
		for _, name := range r.eventFilters[topic0] {
			if !seen[name] {
				interested = append(interested, name)
				seen[name] = true
			}
		}
	}

	address := strings.ToLower(event.Log.Address.Hex())
	for _, name := range r.addressFilters[address] {
		if !seen[name] {
			interested = append(interested, name)
			seen[name] = true
		}
	}

	sort.Strings(interested)
	return interested
}

// Topics returns every registered topic0, sorted.
func (r *ModuleRegistry) Topics() []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]common.Hash, 0, len(r.eventFilters))
	for topic := range r.eventFilters {
		topics = append(topics, common.HexToHash(topic))
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Hex() < topics[j].Hex()
	})
	return topics
}

func (r *ModuleRegistry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("module registry is already running")
	}
	r.running = true
	r.logger.Info().Int("modules", len(r.modules)).Msg("Module registry started")
	return nil
}

func (r *ModuleRegistry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.logger.Info().Msg("Module registry stopped")
	return nil
}

// GetModule returns a registered module by name
func (r *ModuleRegistry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	module, exists := r.modules[name]
	return module, exists
}

// ListModules returns all registered module names, sorted.
func (r *ModuleRegistry) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a module's status.
func (r *ModuleRegistry) Status(name string) (ModuleStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.status[name]
	return status, ok
}

// Pause stops routing to a module until Resume.
func (r *ModuleRegistry) Pause(name string) error {
	return r.transition(name, StatusPaused)
}

func (r *ModuleRegistry) Resume(name string) error {
	return r.transition(name, StatusActive)
}

func (r *ModuleRegistry) transition(name string, status ModuleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	r.status[name] = status
	r.logger.Info().Str("module", name).Str("status", string(status)).Msg("Module status changed")
	return nil
}

func (r *ModuleRegistry) setStatus(name string, status ModuleStatus) {
	r.mu.Lock()
	r.status[name] = status
	r.mu.Unlock()
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
