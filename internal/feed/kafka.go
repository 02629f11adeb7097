package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

// KafkaConfig holds the Kafka connection settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// MessageReader is the consumer side of *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the producer side of *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes raw events published one per message, in block order,
// on a single-partition topic. Offsets are committed after the block that
// contains them has been handled.
type KafkaSource struct {
	reader    MessageReader
	idleFlush time.Duration
	logger    zerolog.Logger
}

func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

func NewKafkaSource(reader MessageReader, idleFlush time.Duration, logger zerolog.Logger) *KafkaSource {
	if idleFlush <= 0 {
		idleFlush = 2 * time.Second
	}
	return &KafkaSource{
		reader:    reader,
		idleFlush: idleFlush,
		logger:    logger.With().Str("component", "kafka_feed").Logger(),
	}
}

func (s *KafkaSource) Name() string { return "kafka" }

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// Run reads until ctx is cancelled. A block is handed over when the first
// event of a later block arrives, or when the topic has been idle for
// the idle flush interval.
func (s *KafkaSource) Run(ctx context.Context, from uint64, handle BlockHandler) error {
	var (
		pending []*core.RawEvent
		msgs    []kafka.Message
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		block := pending[0].Log.BlockNumber
		if block >= from {
			if err := handle(ctx, block, pending); err != nil {
				return err
			}
		}
		if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("failed to commit offsets for block %d: %w", block, err)
		}
		metrics.RecordFeedLogs(s.Name(), len(pending))
		pending, msgs = nil, nil
		return nil
	}

	for {
		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if len(pending) > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, s.idleFlush)
		}
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		var ev core.RawEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.logger.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Dropping undecodable message")
			if len(pending) == 0 {
				if err := s.reader.CommitMessages(ctx, msg); err != nil {
					return fmt.Errorf("failed to commit offset: %w", err)
				}
			} else {
				msgs = append(msgs, msg)
			}
			continue
		}

		if len(pending) > 0 && pending[0].Log.BlockNumber != ev.Log.BlockNumber {
			if ev.Log.BlockNumber < pending[0].Log.BlockNumber {
				return fmt.Errorf("out of order event: block %d after block %d", ev.Log.BlockNumber, pending[0].Log.BlockNumber)
			}
			if err := flush(); err != nil {
				return err
			}
		}
		pending = append(pending, &ev)
		msgs = append(msgs, msg)
		metrics.UpdateFeedHead(ev.Log.BlockNumber)
	}
}

// KafkaPublisher writes raw events to a topic. Every message carries the same
// key, so the whole stream hashes to one partition and keeps block order; the
// topic is expected to have a single partition. Its Publish method is a
// BlockHandler, which lets a backfill fan a range out to Kafka.
type KafkaPublisher struct {
	writer MessageWriter
	key    []byte
	logger zerolog.Logger
}

func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaPublisher keys every message with streamKey, usually the factory id.
func NewKafkaPublisher(writer MessageWriter, streamKey string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		key:    []byte(streamKey),
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, block uint64, events []*core.RawEvent) error {
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event %s-%d: %w", ev.Log.TxHash.Hex(), ev.Log.Index, err)
		}
		msgs[i] = kafka.Message{Key: p.key, Value: data}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish block %d: %w", block, err)
	}
	p.logger.Debug().Uint64("block", block).Int("events", len(events)).Msg("Published block")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
