package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/feed"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/store"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

var tallyTopic = common.HexToHash("0x7a11")

const kindTally entity.Kind = "Tally"

type tally struct {
	ID      string   `json:"id"`
	Count   int      `json:"count"`
	Applied []uint64 `json:"applied"`
}

func (t *tally) EntityKind() entity.Kind { return kindTally }
func (t *tally) EntityID() string        { return t.ID }

// tallyModule counts events. Data "skip" makes it drop the event, "boom"
// simulates a storage outage.
type tallyModule struct{}

func (tallyModule) Name() string    { return "tally" }
func (tallyModule) Version() string { return "0.1.0" }

func (tallyModule) Manifest() *core.Manifest {
	addr := "0x0000000000000000000000000000000000000001"
	return &core.Manifest{
		Name:    "tally",
		Version: "0.1.0",
		DataSources: []core.DataSource{{
			Kind:   "ethereum/contract",
			Name:   "Counter",
			Source: core.DataSourceSource{Address: &addr, ABI: "Counter"},
			Mapping: core.DataSourceMapping{
				EventHandlers: []core.EventHandler{{Event: "Tick()", Handler: "handleTick"}},
			},
		}},
	}
}

func (tallyModule) EventFilters() []core.EventFilter {
	return []core.EventFilter{{Topic0: tallyTopic.Hex()}}
}

func (tallyModule) HandleEvent(ctx context.Context, tx *store.Batch, ev *core.RawEvent) error {
	switch string(ev.Log.Data) {
	case "boom":
		return &store.BackendError{Op: "get", Err: errors.New("connection refused")}
	case "skip":
		return nil
	}
	t, ok, err := store.Find[tally](ctx, tx, kindTally, "t")
	if err != nil {
		return err
	}
	if !ok {
		t = &tally{ID: "t"}
	}
	t.Count++
	t.Applied = append(t.Applied, ev.Log.BlockNumber*100+uint64(ev.Log.Index))
	return tx.Save(t)
}

func event(block uint64, index uint, data string) *core.RawEvent {
	return &core.RawEvent{
		Log: types.Log{
			Topics:      []common.Hash{tallyTopic},
			Data:        []byte(data),
			BlockNumber: block,
			Index:       index,
		},
		Timestamp: 1_600_000_000 + block,
	}
}

func newRegistry(t *testing.T) *core.ModuleRegistry {
	t.Helper()
	registry := core.NewModuleRegistry(zerolog.Nop())
	require.NoError(t, registry.RegisterModule(tallyModule{}))
	require.NoError(t, registry.Start())
	return registry
}

func newProcessor(t *testing.T, backend store.Backend, cfg Config) *Processor {
	t.Helper()
	return New(backend, newRegistry(t), cfg, zerolog.Nop())
}

func loadTally(t *testing.T, backend store.Reader) *tally {
	t.Helper()
	v, ok, err := store.Find[tally](context.Background(), backend, kindTally, "t")
	require.NoError(t, err)
	if !ok {
		return &tally{ID: "t"}
	}
	return v
}

func TestHandleBlockCommitsEventsWithCursor(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	p := newProcessor(t, backend, Config{})

	var results []*BlockResult
	p.Subscribe(SubscriberFunc(func(_ context.Context, r *BlockResult) {
		results = append(results, r)
	}))

	require.NoError(t, p.HandleBlock(ctx, 10, []*core.RawEvent{event(10, 0, ""), event(10, 3, "")}))
	require.NoError(t, p.HandleBlock(ctx, 11, []*core.RawEvent{event(11, 1, "")}))

	assert.Equal(t, []uint64{1000, 1003, 1101}, loadTally(t, backend).Applied)

	cursor, ok := p.Cursor()
	require.True(t, ok)
	assert.Equal(t, uint64(11), cursor.BlockNumber)
	assert.Equal(t, uint64(1), cursor.LogIndex)

	stored, err := store.Load[entity.IndexerState](ctx, backend, entity.KindIndexerState, DefaultCursorID)
	require.NoError(t, err)
	assert.Equal(t, cursor, *stored)

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Applied)
	assert.Equal(t, uint64(1_600_000_010), results[0].Timestamp)
	kinds := map[entity.Kind]bool{}
	for _, m := range results[0].Mutations {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds[kindTally])
	assert.True(t, kinds[entity.KindIndexerState])
}

func TestReplayedEventsAreSkipped(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	p := newProcessor(t, backend, Config{})

	block := []*core.RawEvent{event(10, 0, ""), event(10, 1, "")}
	require.NoError(t, p.HandleBlock(ctx, 10, block))
	before := backend.Snapshot()

	var notified int
	p.Subscribe(SubscriberFunc(func(context.Context, *BlockResult) { notified++ }))
	require.NoError(t, p.HandleBlock(ctx, 10, block))
	assert.Equal(t, before, backend.Snapshot())
	assert.Zero(t, notified)

	// A restarted processor picks the cursor up from the store.
	restarted := newProcessor(t, backend, Config{})
	cursor, err := restarted.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(10), restarted.NextBlock(1))
	assert.Equal(t, uint64(20), restarted.NextBlock(20))

	require.NoError(t, restarted.HandleBlock(ctx, 10, append(block, event(10, 2, ""))))
	assert.Equal(t, []uint64{1000, 1001, 1002}, loadTally(t, backend).Applied)
}

func TestBackendFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	p := newProcessor(t, backend, Config{})

	require.NoError(t, p.HandleBlock(ctx, 10, []*core.RawEvent{event(10, 0, "")}))
	before := backend.Snapshot()

	err := p.HandleBlock(ctx, 11, []*core.RawEvent{event(11, 0, ""), event(11, 1, "boom")})
	require.Error(t, err)
	assert.True(t, store.IsBackendError(err))
	assert.Equal(t, before, backend.Snapshot())

	cursor, _ := p.Cursor()
	assert.Equal(t, uint64(10), cursor.BlockNumber)
}

func TestSkippedEventsAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	p := newProcessor(t, backend, Config{})

	var result *BlockResult
	p.Subscribe(SubscriberFunc(func(_ context.Context, r *BlockResult) { result = r }))
	require.NoError(t, p.HandleBlock(ctx, 10, []*core.RawEvent{event(10, 0, "skip"), event(10, 1, "")}))

	require.NotNil(t, result)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, loadTally(t, backend).Count)

	cursor, _ := p.Cursor()
	assert.Equal(t, uint64(1), cursor.LogIndex)
}

func TestMaxBlockEventsCommitsEarly(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	p := newProcessor(t, backend, Config{MaxBlockEvents: 2})

	err := p.HandleBlock(ctx, 10, []*core.RawEvent{
		event(10, 0, ""), event(10, 1, ""), event(10, 2, ""), event(10, 3, "boom"),
	})
	require.Error(t, err)

	// The first two events were committed with their cursor; the third was not.
	assert.Equal(t, []uint64{1000, 1001}, loadTally(t, backend).Applied)
	cursor, _ := p.Cursor()
	assert.Equal(t, uint64(1), cursor.LogIndex)
}

func TestHandleBlockRejectsForeignEvents(t *testing.T) {
	p := newProcessor(t, memory.New(), Config{})
	err := p.HandleBlock(context.Background(), 10, []*core.RawEvent{event(11, 0, "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not 10")
}

// staticSource replays fixed blocks; the first `failures` runs fail.
type staticSource struct {
	blocks   map[uint64][]*core.RawEvent
	order    []uint64
	failures int
	err      error
	froms    []uint64
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Run(ctx context.Context, from uint64, handle feed.BlockHandler) error {
	s.froms = append(s.froms, from)
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	for _, b := range s.order {
		if b < from {
			continue
		}
		if err := handle(ctx, b, s.blocks[b]); err != nil {
			return err
		}
	}
	return nil
}

func TestIndexerRetriesFeedFailures(t *testing.T) {
	backend := memory.New()
	p := newProcessor(t, backend, Config{})
	src := &staticSource{
		blocks: map[uint64][]*core.RawEvent{
			5: {event(5, 0, "")},
			6: {event(6, 0, ""), event(6, 1, "")},
		},
		order:    []uint64{5, 6},
		failures: 2,
		err:      errors.New("rpc unavailable"),
	}

	idx := NewIndexer(src, p, 5, zerolog.Nop())
	idx.RetryDelay = time.Millisecond
	require.NoError(t, idx.Run(context.Background()))

	assert.Equal(t, []uint64{5, 5, 5}, src.froms)
	assert.Equal(t, 3, loadTally(t, backend).Count)

	status := idx.GetStatus()
	assert.False(t, status.Running)
	assert.Equal(t, uint64(2), status.Blocks)
	assert.Equal(t, uint64(6), status.CursorBlock)
	assert.Equal(t, uint64(1), status.CursorIndex)
	assert.Equal(t, "rpc unavailable", status.LastError)
}

func TestIndexerGivesUpAfterConsecutiveErrors(t *testing.T) {
	src := &staticSource{failures: 100, err: errors.New("rpc unavailable")}
	idx := NewIndexer(src, newProcessor(t, memory.New(), Config{}), 1, zerolog.Nop())
	idx.RetryDelay = time.Millisecond
	idx.MaxConsecutiveErrors = 3

	err := idx.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, src.froms, 3)
}

func TestIndexerHaltsOnStoreFailure(t *testing.T) {
	src := &staticSource{
		blocks: map[uint64][]*core.RawEvent{5: {event(5, 0, "boom")}},
		order:  []uint64{5},
	}
	idx := NewIndexer(src, newProcessor(t, memory.New(), Config{}), 1, zerolog.Nop())
	idx.RetryDelay = time.Millisecond

	err := idx.Run(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsBackendError(err))
	assert.Len(t, src.froms, 1)
}

func TestIndexerResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, newProcessor(t, backend, Config{}).HandleBlock(ctx, 8, []*core.RawEvent{event(8, 0, "")}))

	src := &staticSource{
		blocks: map[uint64][]*core.RawEvent{8: {event(8, 0, ""), event(8, 1, "")}, 9: {event(9, 0, "")}},
		order:  []uint64{8, 9},
	}
	idx := NewIndexer(src, newProcessor(t, backend, Config{}), 1, zerolog.Nop())
	require.NoError(t, idx.Run(ctx))

	assert.Equal(t, []uint64{8}, src.froms)
	assert.Equal(t, []uint64{800, 801, 900}, loadTally(t, backend).Applied)
}
