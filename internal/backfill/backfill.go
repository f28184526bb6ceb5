// Package backfill fans batched historical log fetches out across a
// block range and persists the decoded transfers.
package backfill

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch/erc20-indexer/internal/chain"
	"github.com/chainwatch/erc20-indexer/internal/decode"
	"github.com/chainwatch/erc20-indexer/internal/store"
)

// HistoricalBatch is the maximum number of blocks fetched in one
// eth_getLogs call during backfill.
const HistoricalBatch = 100_000

// MaxConcurrentBatches bounds how many historical batches run at once,
// so a wide backfill window does not overwhelm the node or the DB pool.
const MaxConcurrentBatches = 8

// Engine is the Backfill Engine (C5): it partitions a block range into
// HistoricalBatch-sized windows and processes them concurrently.
type Engine struct {
	client chain.Client
	store  store.Store
	logger *zap.Logger
	token  common.Address
	topic  common.Hash
}

// New constructs a backfill Engine for token/topic against client and store.
func New(client chain.Client, st store.Store, token common.Address, topic common.Hash, logger *zap.Logger) *Engine {
	return &Engine{client: client, store: st, token: token, topic: topic, logger: logger}
}

type batch struct {
	from, to uint64
}

// batches partitions [start, end] into contiguous, non-overlapping
// windows of at most HistoricalBatch blocks.
func batches(start, end uint64) []batch {
	if start > end {
		return nil
	}
	var out []batch
	for from := start; from <= end; {
		to := from + HistoricalBatch - 1
		if to > end {
			to = end
		}
		out = append(out, batch{from: from, to: to})
		if to == end {
			break
		}
		from = to + 1
	}
	return out
}

// Run processes every batch in [start, end], clipped to the chain head at
// the moment it is called. A failure inside one batch is logged and does
// not abort sibling batches; Run returns once every batch has reported.
func (e *Engine) Run(ctx context.Context, start, end uint64) error {
	head, err := e.client.HeadBlock(ctx)
	if err != nil {
		return err
	}
	if end > head {
		end = head
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentBatches)

	for _, b := range batches(start, end) {
		b := b
		g.Go(func() error {
			e.runBatch(ctx, b.from, b.to)
			return nil
		})
	}

	// g.Wait never returns a non-nil error: runBatch swallows its own
	// failures so one bad batch can't abort its siblings.
	return g.Wait()
}

// runBatch fetches, decodes and persists one sub-range, applying logs in
// provider order. Decode and insert failures are logged and skipped.
func (e *Engine) runBatch(ctx context.Context, from, to uint64) {
	logs, err := e.client.FetchLogs(ctx, e.token, e.topic, from, to)
	if err != nil {
		e.logger.Warn("backfill: fetch logs failed", zap.Uint64("from", from), zap.Uint64("to", to), zap.Error(err))
		return
	}

	for _, lg := range logs {
		t, err := decode.Decode(lg)
		if err != nil {
			e.logger.Warn("backfill: decode failed", zap.Error(err))
			continue
		}
		nt := store.NewTransfer{
			Sender:      t.Sender,
			Recipient:   t.Recipient,
			Amount:      t.Amount,
			BlockNumber: t.BlockNumber,
			TxHash:      t.TxHash,
		}
		if err := e.store.Insert(ctx, nt); err != nil {
			e.logger.Warn("backfill: insert failed", zap.String("tx_hash", t.TxHash), zap.Error(err))
		}
	}
}
