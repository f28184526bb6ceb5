// Package tailer keeps a token's transfer history current after backfill
// completes, polling for new blocks and staging them in bounded batches.
package tailer

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainwatch/erc20-indexer/internal/backfill"
	"github.com/chainwatch/erc20-indexer/internal/chain"
	"github.com/chainwatch/erc20-indexer/internal/decode"
	"github.com/chainwatch/erc20-indexer/internal/discovery"
	"github.com/chainwatch/erc20-indexer/internal/store"
)

// LiveBatch is the maximum number of blocks fetched in one eth_getLogs
// call while catching up to the chain head during tailing.
const LiveBatch = 100

// PollInterval is how often the tailer checks for a new chain head.
const PollInterval = 5 * time.Second

// RateLimitBackoff is how long the tailer waits before retrying after a
// provider reports a rate limit.
const RateLimitBackoff = 10 * time.Second

// Tailer owns the full lifecycle of a single token: discovery, backfill,
// then indefinite live polling until its context is cancelled.
type Tailer struct {
	client chain.Client
	store  store.Store
	token  common.Address
	logger *zap.Logger

	backfillEngine *backfill.Engine
	lastBlock      uint64

	pollInterval     time.Duration
	rateLimitBackoff time.Duration
}

// New constructs a Tailer for token, backed by client and store.
func New(client chain.Client, st store.Store, token common.Address, logger *zap.Logger) *Tailer {
	return &Tailer{
		client:           client,
		store:            st,
		token:            token,
		logger:           logger,
		backfillEngine:   backfill.New(client, st, token, decode.TransferTopic, logger),
		pollInterval:     PollInterval,
		rateLimitBackoff: RateLimitBackoff,
	}
}

// Run discovers the token's historical range, backfills it, then polls
// for new blocks until ctx is cancelled. Cancellation is observed only at
// iteration boundaries: a batch already in flight is allowed to finish.
func (t *Tailer) Run(ctx context.Context) error {
	if err := t.init(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tailer: stopping", zap.Uint64("last_block", t.lastBlock))
			return nil
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// init runs the Init stage: discover the historical range, backfill it,
// and set last_block to the chain head observed once backfill returns.
func (t *Tailer) init(ctx context.Context) error {
	r, err := discovery.Discover(ctx, t.client, t.token, decode.TransferTopic)
	if err != nil {
		return err
	}

	if err := t.backfillEngine.Run(ctx, r.Min, r.Max); err != nil {
		return err
	}

	head, err := t.client.HeadBlock(ctx)
	if err != nil {
		return err
	}
	t.lastBlock = head
	t.logger.Info("tailer: initialized", zap.Uint64("last_block", head))
	return nil
}

// poll is the Polling stage: fetch the current head and, if it has
// advanced past last_block, walk forward in LiveBatch-sized windows.
func (t *Tailer) poll(ctx context.Context) {
	head, err := t.client.HeadBlock(ctx)
	if err != nil {
		t.logger.Warn("tailer: head block failed, will retry next poll", zap.Error(err))
		return
	}

	if head <= t.lastBlock {
		return
	}

	t.catchUp(ctx, head)
}

// catchUp is the Catching-up stage: walk (last_block, head] in
// LiveBatch-sized windows. A rate-limit error sleeps before returning
// without advancing last_block, so the same window is retried on the
// next poll; any other fetch error returns immediately, also without
// advancing. last_block only moves once every window has been applied.
func (t *Tailer) catchUp(ctx context.Context, head uint64) {
	from := t.lastBlock + 1

	// Fetches and inserts run on a context that ignores cancellation, so a
	// window already started is applied fully; ctx is checked between windows.
	opCtx := context.WithoutCancel(ctx)

	for from <= head {
		select {
		case <-ctx.Done():
			return
		default:
		}

		to := from + LiveBatch - 1
		if to > head {
			to = head
		}

		logs, err := t.client.FetchLogs(opCtx, t.token, decode.TransferTopic, from, to)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
				t.logger.Warn("tailer: rate limited, backing off", zap.Duration("backoff", t.rateLimitBackoff))
				select {
				case <-time.After(t.rateLimitBackoff):
				case <-ctx.Done():
				}
				return
			}
			t.logger.Warn("tailer: fetch logs failed, will retry next poll", zap.Error(err))
			return
		}

		for _, lg := range logs {
			tr, err := decode.Decode(lg)
			if err != nil {
				t.logger.Warn("tailer: decode failed", zap.Error(err))
				continue
			}
			nt := store.NewTransfer{
				Sender:      tr.Sender,
				Recipient:   tr.Recipient,
				Amount:      tr.Amount,
				BlockNumber: tr.BlockNumber,
				TxHash:      tr.TxHash,
			}
			if err := t.store.Insert(opCtx, nt); err != nil {
				t.logger.Warn("tailer: insert failed", zap.String("tx_hash", tr.TxHash), zap.Error(err))
			}
		}

		from = to + 1
	}

	t.lastBlock = head
}
