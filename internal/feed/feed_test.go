package feed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

var (
	factory     = common.HexToAddress("0xA818b4F111Ccac7AA31D0BCc0806d64F2E0737D7")
	createdPair = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	factoryTop  = common.HexToHash("0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9")
	syncTop     = common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1")
	sender      = common.HexToAddress("0x00000000000000000000000000000000000000a1")

	streamKey = "0xa818b4f111ccac7aa31d0bcc0806d64f2e0737d7"
)

type collector struct {
	mu     sync.Mutex
	blocks []uint64
	events map[uint64][]*core.RawEvent
}

func (c *collector) handle(_ context.Context, block uint64, events []*core.RawEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = make(map[uint64][]*core.RawEvent)
	}
	c.blocks = append(c.blocks, block)
	c.events[block] = events
	return nil
}

func rawEvent(block uint64, index uint, address common.Address) *core.RawEvent {
	return &core.RawEvent{
		Log: types.Log{
			Address:     address,
			Topics:      []common.Hash{syncTop},
			Data:        []byte{0x01},
			BlockNumber: block,
			TxHash:      common.BigToHash(common.Big1),
			Index:       index,
		},
		Timestamp: 1_600_000_000 + block,
		TxFrom:    sender,
	}
}

func TestGroupByBlock(t *testing.T) {
	events := []*core.RawEvent{rawEvent(1, 0, factory), rawEvent(1, 1, factory), rawEvent(3, 0, factory)}
	groups := groupByBlock(events)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, uint64(3), groups[1][0].Log.BlockNumber)
	assert.Empty(t, groupByBlock(nil))
}

// fakeChain serves logs from memory.
type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	headErrors  int
	logRequests [][]common.Address
}

func (f *fakeChain) GetLatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErrors > 0 {
		f.headErrors--
		return 0, errors.New("connection refused")
	}
	return f.head, nil
}

func (f *fakeChain) GetLogs(_ context.Context, from, to uint64, addresses []common.Address, _ [][]common.Hash, _ int64) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logRequests = append(f.logRequests, addresses)

	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		for _, a := range addresses {
			if a == log.Address {
				out = append(out, log)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeChain) BlockTimestamps(_ context.Context, blocks []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(blocks))
	for _, b := range blocks {
		out[b] = 1_600_000_000 + b
	}
	return out, nil
}

func (f *fakeChain) TransactionSender(context.Context, common.Hash, uint) (common.Address, error) {
	return sender, nil
}

func newChain() *fakeChain {
	return &fakeChain{
		head: 100,
		logs: []types.Log{
			{Address: factory, Topics: []common.Hash{factoryTop}, Data: createdPair.Bytes(), BlockNumber: 10, Index: 0},
			{Address: createdPair, Topics: []common.Hash{syncTop}, Data: []byte{1}, BlockNumber: 10, Index: 1},
			{Address: createdPair, Topics: []common.Hash{syncTop}, Data: []byte{2}, BlockNumber: 12, Index: 0},
			{Address: createdPair, Topics: []common.Hash{syncTop}, Data: []byte{3}, BlockNumber: 50, Index: 0},
		},
	}
}

func newRPCSource(chain ChainReader, confirmations uint64) *RPCSource {
	return NewRPCSource(chain, RPCConfig{
		Factory:      factory,
		FactoryTopic: factoryTop,
		PairTopics:   []common.Hash{syncTop},
		DiscoverPair: func(log types.Log) (common.Address, bool) {
			return common.BytesToAddress(log.Data), len(log.Data) > 0
		},
		LogRange:      20,
		Confirmations: confirmations,
		PollInterval:  time.Millisecond,
		RetryDelay:    time.Millisecond,
	}, zerolog.Nop())
}

func TestRPCSourceDiscoversPairsWithinRange(t *testing.T) {
	chain := newChain()
	src := newRPCSource(chain, 0)

	var got collector
	require.NoError(t, src.RunRange(context.Background(), 1, 20, got.handle))

	assert.Equal(t, []uint64{10, 12}, got.blocks)
	require.Len(t, got.events[10], 2)
	assert.Equal(t, factory, got.events[10][0].Log.Address)
	assert.Equal(t, createdPair, got.events[10][1].Log.Address)
	assert.Equal(t, uint64(1_600_000_010), got.events[10][1].Timestamp)
	assert.Equal(t, sender, got.events[12][0].TxFrom)
	assert.Equal(t, 1, src.Watched())

	synced, _ := src.Status()
	assert.Equal(t, uint64(20), synced)
}

func TestRPCSourceStopsAtConfirmedHead(t *testing.T) {
	chain := newChain()
	chain.headErrors = 2
	src := newRPCSource(chain, 60)

	stop := errors.New("stop")
	var got collector
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := src.Run(ctx, 1, func(ctx context.Context, block uint64, events []*core.RawEvent) error {
		_ = got.handle(ctx, block, events)
		if block == 12 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, []uint64{10, 12}, got.blocks)

	_, head := src.Status()
	assert.Equal(t, uint64(40), head)
}

func TestRPCSourceFetchesWatchedPairs(t *testing.T) {
	src := newRPCSource(newChain(), 0)
	src.Watch(createdPair)

	var got collector
	require.NoError(t, src.RunRange(context.Background(), 11, 30, got.handle))
	assert.Equal(t, []uint64{12}, got.blocks)
}

func TestRPCSourceGivesUpAfterRetries(t *testing.T) {
	chain := newChain()
	chain.headErrors = 100
	src := newRPCSource(chain, 0)

	err := src.Run(context.Background(), 1, (&collector{}).handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")
}

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, streamKey, zerolog.Nop())
	require.NoError(t, pub.Publish(ctx, 5, []*core.RawEvent{rawEvent(5, 0, createdPair), rawEvent(5, 1, createdPair)}))
	require.NoError(t, pub.Publish(ctx, 6, []*core.RawEvent{rawEvent(6, 0, createdPair)}))
	require.Len(t, writer.msgs, 3)

	reader := &fakeReader{}
	for i, m := range writer.msgs {
		m.Offset = int64(i)
		reader.queue = append(reader.queue, m)
	}
	reader.queue = append(reader.queue[:2], append([]kafka.Message{{Offset: 99, Value: []byte("not json")}}, reader.queue[2:]...)...)

	src := NewKafkaSource(reader, 10*time.Millisecond, zerolog.Nop())
	var got collector
	err := src.Run(ctx, 0, func(ctx context.Context, block uint64, events []*core.RawEvent) error {
		_ = got.handle(ctx, block, events)
		if block == 6 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, ErrStopped)

	assert.Equal(t, []uint64{5, 6}, got.blocks)
	require.Len(t, got.events[5], 2)
	assert.Equal(t, uint(1), got.events[5][1].Log.Index)
	assert.Equal(t, sender, got.events[6][0].TxFrom)
	assert.ElementsMatch(t, []int64{0, 1, 99, 2}, reader.committed)
}

func TestKafkaPublisherKeepsOnePartitionKey(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, streamKey, zerolog.Nop())
	require.NoError(t, pub.Publish(context.Background(), 5, []*core.RawEvent{rawEvent(5, 0, createdPair), rawEvent(5, 1, createdPair)}))
	require.NoError(t, pub.Publish(context.Background(), 6, []*core.RawEvent{rawEvent(6, 0, createdPair)}))

	// A per-block key would spread consecutive blocks over partitions.
	require.Len(t, writer.msgs, 3)
	for _, m := range writer.msgs {
		assert.Equal(t, streamKey, string(m.Key))
	}
}

func TestKafkaSourceRejectsOutOfOrderBlocks(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, streamKey, zerolog.Nop())
	require.NoError(t, pub.Publish(context.Background(), 8, []*core.RawEvent{rawEvent(8, 0, createdPair)}))
	require.NoError(t, pub.Publish(context.Background(), 7, []*core.RawEvent{rawEvent(7, 0, createdPair)}))

	reader := &fakeReader{queue: writer.msgs}
	src := NewKafkaSource(reader, time.Second, zerolog.Nop())
	err := src.Run(context.Background(), 0, (&collector{}).handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
	assert.Empty(t, reader.committed)
}

func TestFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFileWriter(&buf)
	require.NoError(t, w.Write(context.Background(), 3, []*core.RawEvent{rawEvent(3, 0, createdPair), rawEvent(3, 2, createdPair)}))
	require.NoError(t, w.Write(context.Background(), 4, []*core.RawEvent{rawEvent(4, 0, createdPair)}))
	require.NoError(t, w.Close())
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	var got collector
	require.NoError(t, ReadEvents(context.Background(), bytes.NewReader(buf.Bytes()), 0, got.handle))
	assert.Equal(t, []uint64{3, 4}, got.blocks)
	assert.Equal(t, uint(2), got.events[3][1].Log.Index)
	assert.Equal(t, []byte{0x01}, got.events[4][0].Log.Data)
	assert.Equal(t, uint64(1_600_000_004), got.events[4][0].Timestamp)

	got = collector{}
	require.NoError(t, ReadEvents(context.Background(), bytes.NewReader(buf.Bytes()), 4, got.handle))
	assert.Equal(t, []uint64{4}, got.blocks)
}

func TestFileRejectsUnorderedEvents(t *testing.T) {
	var buf bytes.Buffer
	w := NewFileWriter(&buf)
	require.NoError(t, w.Write(context.Background(), 3, []*core.RawEvent{rawEvent(3, 1, createdPair), rawEvent(3, 1, createdPair)}))

	err := ReadEvents(context.Background(), &buf, 0, (&collector{}).handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(t.TempDir()+"/missing.jsonl", zerolog.Nop())
	assert.Equal(t, "file", src.Name())
	assert.Error(t, src.Run(context.Background(), 0, (&collector{}).handle))
}
