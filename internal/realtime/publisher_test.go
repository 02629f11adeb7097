package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/processor"
	"github.com/1hive/honeyswap-indexer/internal/store"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

type published struct {
	channel string
	payload map[string]any
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeClient) Publish(_ context.Context, channel string, data []byte, _ ...gocent.PublishOption) (gocent.PublishResult, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return gocent.PublishResult{}, err
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, published{channel, payload})
	f.mu.Unlock()
	return gocent.PublishResult{}, nil
}

func (f *fakeClient) byChannel(channel string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, m := range f.msgs {
		if m.channel == channel {
			out = append(out, m.payload)
		}
	}
	return out
}

func mutation(t *testing.T, e entity.Entity) store.Mutation {
	t.Helper()
	m, err := store.Encode(e)
	require.NoError(t, err)
	return m
}

func TestPublisherForwardsCommittedState(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	pair := &entity.Pair{ID: "0xpair", Token0: "0xt0", Token1: "0xt1", ReserveUSD: decimal.NewFromInt(2000), TxCount: 3}
	swap := &entity.Swap{ID: "0xtx-0", Transaction: "0xtx", Pair: "0xpair", AmountUSD: decimal.NewFromInt(100)}
	mutations := []store.Mutation{mutation(t, pair), mutation(t, swap)}
	require.NoError(t, backend.Apply(ctx, mutations))

	client := &fakeClient{}
	p := NewPublisher(client, backend, PublishConfig{}, zerolog.Nop())
	p.OnCommit(ctx, &processor.BlockResult{Block: 42, Mutations: mutations})

	events := client.byChannel(PairChannel("0xpair"))
	require.Len(t, events, 1)
	assert.Equal(t, "pair.event", events[0]["type"])
	assert.Equal(t, "swap", events[0]["event_type"])

	p.Flush()
	events = client.byChannel(PairChannel("0xpair"))
	require.Len(t, events, 2)
	assert.Equal(t, "pair.update", events[1]["type"])
	assert.Equal(t, float64(42), events[1]["block_number"])
	assert.Equal(t, "2000", events[1]["pair"].(map[string]any)["reserveUSD"])

	batches := client.byChannel(PairsChannel)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0]["items"], 1)

	// Nothing queued, nothing sent.
	p.Flush()
	assert.Len(t, client.byChannel(PairsChannel), 1)
}

func TestPublisherSkipsVanishedPairs(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, memory.New(), PublishConfig{}, zerolog.Nop())
	p.EnqueuePairChanged("0xgone")
	p.Flush()
	assert.Empty(t, client.byChannel(PairsChannel))
}

func TestPublisherStats(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, memory.New(), PublishConfig{}, zerolog.Nop())
	p.Start()
	p.PublishStats(context.Background(), map[string]any{"pairCount": 2})
	require.NoError(t, p.Close())

	stats := client.byChannel(StatsChannel)
	require.Len(t, stats, 1)
	assert.Equal(t, float64(2), stats[0]["data"].(map[string]any)["pairCount"])
}
