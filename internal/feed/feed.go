// Package feed delivers raw pair and factory events to the processor in
// (block, log index) order, one block at a time.
package feed

import (
	"context"
	"errors"

	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

// ErrStopped is returned by a source whose context was cancelled.
var ErrStopped = errors.New("feed stopped")

// BlockHandler receives the events of one block. An error stops the source
// without acknowledging the block, so it is delivered again on restart.
type BlockHandler func(ctx context.Context, block uint64, events []*core.RawEvent) error

// Source is an ordered, at-least-once event stream.
type Source interface {
	Name() string
	// Run delivers every block from `from` onwards until ctx is cancelled, the
	// source is exhausted or handle fails.
	Run(ctx context.Context, from uint64, handle BlockHandler) error
}

// groupByBlock splits ordered events into per-block runs.
func groupByBlock(events []*core.RawEvent) [][]*core.RawEvent {
	var (
		groups  [][]*core.RawEvent
		current []*core.RawEvent
	)
	for _, ev := range events {
		if len(current) > 0 && current[0].Log.BlockNumber != ev.Log.BlockNumber {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, ev)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func deliver(ctx context.Context, events []*core.RawEvent, from uint64, handle BlockHandler) error {
	for _, group := range groupByBlock(events) {
		block := group[0].Log.BlockNumber
		if block < from {
			continue
		}
		if err := handle(ctx, block, group); err != nil {
			return err
		}
	}
	return nil
}
