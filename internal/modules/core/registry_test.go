package core

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/store"
)

var (
	topicA   = common.HexToHash("0xa1")
	topicB   = common.HexToHash("0xb2")
	contract = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

type recordingModule struct {
	name    string
	filters []EventFilter
	err     error
	seen    []uint
}

func (m *recordingModule) Name() string    { return m.name }
func (m *recordingModule) Version() string { return "1.0.0" }

func (m *recordingModule) Manifest() *Manifest {
	addr := contract.Hex()
	return &Manifest{
		Name:    m.name,
		Version: "1.0.0",
		DataSources: []DataSource{{
			Kind:   "ethereum/contract",
			Name:   "Source",
			Source: DataSourceSource{Address: &addr, ABI: "Source"},
			Mapping: DataSourceMapping{
				EventHandlers: []EventHandler{{Event: "Ping()", Handler: "handlePing"}},
			},
		}},
	}
}

func (m *recordingModule) EventFilters() []EventFilter { return m.filters }

func (m *recordingModule) HandleEvent(_ context.Context, _ *store.Batch, event *RawEvent) error {
	m.seen = append(m.seen, event.Log.Index)
	return m.err
}

func rawEvent(addr common.Address, topic common.Hash, index uint) *RawEvent {
	return &RawEvent{Log: types.Log{Address: addr, Topics: []common.Hash{topic}, BlockNumber: 1, Index: index}}
}

func TestRegistryRoutesByTopicAndAddress(t *testing.T) {
	ctx := context.Background()
	byTopic := &recordingModule{name: "by-topic", filters: []EventFilter{{Topic0: topicA.Hex()}}}
	byAddress := &recordingModule{name: "by-address", filters: []EventFilter{{Address: contract.Hex()}}}

	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(byTopic))
	require.NoError(t, r.RegisterModule(byAddress))
	assert.Equal(t, []string{"by-address", "by-topic"}, r.ListModules())
	assert.Equal(t, []common.Hash{topicA}, r.Topics())

	tx := store.NewBatch(nil)

	// Nothing is routed before Start.
	require.NoError(t, r.Route(ctx, tx, rawEvent(contract, topicA, 0)))
	assert.Empty(t, byTopic.seen)

	require.NoError(t, r.Start())
	require.NoError(t, r.Route(ctx, tx, rawEvent(contract, topicA, 1)))
	require.NoError(t, r.Route(ctx, tx, rawEvent(common.HexToAddress("0x01"), topicA, 2)))
	require.NoError(t, r.Route(ctx, tx, rawEvent(contract, topicB, 3)))
	require.NoError(t, r.Route(ctx, tx, rawEvent(common.HexToAddress("0x01"), topicB, 4)))

	assert.Equal(t, []uint{1, 2}, byTopic.seen)
	assert.Equal(t, []uint{1, 3}, byAddress.seen)
}

func TestRegistryRejectsDuplicatesAndBadManifests(t *testing.T) {
	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(&recordingModule{name: "one"}))
	assert.Error(t, r.RegisterModule(&recordingModule{name: "one"}))

	// The manifest name drives validation; an empty name is invalid.
	assert.Error(t, r.RegisterModule(&recordingModule{name: ""}))
}

func TestRegistryMarksFailingModule(t *testing.T) {
	ctx := context.Background()
	outage := errors.New("disk full")
	m := &recordingModule{name: "failing", filters: []EventFilter{{Topic0: topicA.Hex()}}, err: outage}

	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(m))
	require.NoError(t, r.Start())

	err := r.Route(ctx, store.NewBatch(nil), rawEvent(contract, topicA, 0))
	require.ErrorIs(t, err, outage)
	assert.Contains(t, err.Error(), "module failing")

	status, ok := r.Status("failing")
	require.True(t, ok)
	assert.Equal(t, StatusError, status)

	// An errored module receives nothing until resumed.
	require.NoError(t, r.Route(ctx, store.NewBatch(nil), rawEvent(contract, topicA, 1)))
	assert.Equal(t, []uint{0}, m.seen)

	m.err = nil
	require.NoError(t, r.Resume("failing"))
	require.NoError(t, r.Route(ctx, store.NewBatch(nil), rawEvent(contract, topicA, 2)))
	assert.Equal(t, []uint{0, 2}, m.seen)
}

func TestRegistryPause(t *testing.T) {
	ctx := context.Background()
	m := &recordingModule{name: "paused", filters: []EventFilter{{Topic0: topicA.Hex()}}}

	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(m))
	require.NoError(t, r.Start())
	assert.Error(t, r.Start())

	require.NoError(t, r.Pause("paused"))
	require.NoError(t, r.Route(ctx, store.NewBatch(nil), rawEvent(contract, topicA, 0)))
	assert.Empty(t, m.seen)
	assert.ErrorIs(t, r.Pause("missing"), ErrUnknownModule)
}
