package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/semaphore"
)

// maxAddressesPerFilter keeps eth_getLogs requests under common provider limits.
const maxAddressesPerFilter = 500

// GetLogs fetches logs for the addresses and topics over [from, to], splitting
// the address list into chunks fetched concurrently. The result is ordered by
// (block, log index).
func (c *Client) GetLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash, workers int64) ([]types.Log, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}

	sem := semaphore.NewWeighted(workers)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		allLogs  []types.Log
		fetchErr error
	)

	for start := 0; start < len(addresses); start += maxAddressesPerFilter {
		end := min(start+maxAddressesPerFilter, len(addresses))
		chunk := addresses[start:end]

		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			query := ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: chunk,
				Topics:    topics,
			}
			callCtx, cancel := withTimeout(ctx)
			logs, err := c.client.FilterLogs(callCtx, query)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fetchErr == nil {
					fetchErr = fmt.Errorf("failed to get logs for %d-%d: %w", from, to, err)
				}
				return
			}
			allLogs = append(allLogs, logs...)
		}()
	}

	wg.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}

	SortLogs(allLogs)
	c.logger.Debug().
		Uint64("from", from).
		Uint64("to", to).
		Int("addresses", len(addresses)).
		Int("logs", len(allLogs)).
		Msg("Fetched logs")
	return allLogs, nil
}

// SortLogs orders logs by (block, log index).
func SortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

type rpcHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// BlockTimestamps fetches the timestamps of the given blocks with batched
// eth_getBlockByNumber calls.
func (c *Client) BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]uint64, error) {
	const batchSize = 100
	out := make(map[uint64]uint64, len(blocks))

	for start := 0; start < len(blocks); start += batchSize {
		end := min(start+batchSize, len(blocks))
		headers := make([]rpcHeader, end-start)
		elems := make([]rpc.BatchElem, end-start)
		for i, n := range blocks[start:end] {
			elems[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{hexutil.EncodeUint64(n), false},
				Result: &headers[i],
			}
		}

		callCtx, cancel := withTimeout(ctx)
		err := c.raw.BatchCallContext(callCtx, elems)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to batch block headers: %w", err)
		}
		for i, n := range blocks[start:end] {
			if elems[i].Error != nil {
				return nil, fmt.Errorf("failed to get block %d: %w", n, elems[i].Error)
			}
			out[n] = uint64(headers[i].Timestamp)
		}
	}
	return out, nil
}
