package core

import (
	"context"

	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Module is a mapping from contract events to entities. Inspired by The Graph's
// subgraph pattern: a manifest declares data sources and handlers, and the module
// applies each event to the store.
type Module interface {
	Name() string

	Version() string

	Manifest() *Manifest

	// EventFilters lists the topics this module handles.
	EventFilters() []EventFilter

	// HandleEvent applies one event through tx. It returns an error only for
	// failures that must halt the pipeline; events that cannot be applied are
	// logged and leave tx empty.
	HandleEvent(ctx context.Context, tx *store.Batch, event *RawEvent) error
}

// EventFilter defines what events a module wants to receive
type EventFilter struct {
	// Topic0 is the event signature hash.
	Topic0 string `yaml:"topic0,omitempty"`

	// Address restricts the filter to one contract; empty matches any emitter.
	Address string `yaml:"address,omitempty"`
}
