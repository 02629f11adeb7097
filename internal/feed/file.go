package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

const maxLineSize = 1 << 20

// FileSource replays a JSON-lines dump of raw events, one event per line, in
// (block, log index) order.
type FileSource struct {
	path   string
	logger zerolog.Logger
}

func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("component", "file_feed").Str("path", path).Logger(),
	}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Run(ctx context.Context, from uint64, handle BlockHandler) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	s.logger.Info().Uint64("from", from).Msg("Replaying event file")
	return ReadEvents(ctx, f, from, handle)
}

// ReadEvents streams events from r, handing over one block at a time.
func ReadEvents(ctx context.Context, r io.Reader, from uint64, handle BlockHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		pending []*core.RawEvent
		line    int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		metrics.RecordFeedLogs("file", len(pending))
		err := deliver(ctx, pending, from, handle)
		pending = nil
		return err
	}

	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return ErrStopped
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		ev := new(core.RawEvent)
		if err := json.Unmarshal(raw, ev); err != nil {
			return fmt.Errorf("line %d: failed to decode event: %w", line, err)
		}
		if len(pending) > 0 {
			last := pending[len(pending)-1].Log
			if ev.Log.BlockNumber < last.BlockNumber ||
				(ev.Log.BlockNumber == last.BlockNumber && ev.Log.Index <= last.Index) {
				return fmt.Errorf("line %d: event %d-%d is out of order", line, ev.Log.BlockNumber, ev.Log.Index)
			}
			if ev.Log.BlockNumber != last.BlockNumber {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		pending = append(pending, ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return flush()
}

// FileWriter appends raw events as JSON lines. Its Write method is a
// BlockHandler, so an RPC range can be dumped for later replay.
type FileWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
	c   io.Closer
}

func CreateFile(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}
	fw := NewFileWriter(f)
	fw.c = f
	return fw, nil
}

func NewFileWriter(w io.Writer) *FileWriter {
	bw := bufio.NewWriter(w)
	return &FileWriter{w: bw, enc: json.NewEncoder(bw)}
}

func (fw *FileWriter) Write(_ context.Context, block uint64, events []*core.RawEvent) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, ev := range events {
		if err := fw.enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to write block %d: %w", block, err)
		}
	}
	return fw.w.Flush()
}

func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.w.Flush(); err != nil {
		return err
	}
	if fw.c != nil {
		return fw.c.Close()
	}
	return nil
}
