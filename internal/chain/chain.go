// Package chain adapts the go-ethereum JSON-RPC client to the two
// operations the indexing core needs: head block and filtered logs.
package chain

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the subset of chain access the indexer depends on. Backfill,
// discovery and the tailer all take this interface rather than a concrete
// client so they can be driven by fakes in tests.
type Client interface {
	HeadBlock(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, token common.Address, topic common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)
}

// EthClient is the production Client backed by an HTTP JSON-RPC endpoint.
type EthClient struct {
	rpc *ethclient.Client
}

// Dial connects to the node at url. The connection is kept for the
// lifetime of the process; callers should defer Close.
func Dial(ctx context.Context, url string) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &EthClient{rpc: rpc}, nil
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	c.rpc.Close()
}

// HeadBlock returns the current best block number.
func (c *EthClient) HeadBlock(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// FetchLogs returns the Transfer logs for token in [fromBlock, toBlock],
// ordered by (block_number, log_index) ascending as the node returns them.
func (c *EthClient) FetchLogs(ctx context.Context, token common.Address, topic common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{topic}},
	}
	return c.rpc.FilterLogs(ctx, q)
}
