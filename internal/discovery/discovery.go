// Package discovery locates the historical block range a token's Transfer
// logs live in, so backfill does not scan empty prehistory.
package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainwatch/erc20-indexer/internal/chain"
)

// Range is the inclusive [Min, Max] block window bounding every historical
// Transfer for the configured token.
type Range struct {
	Min uint64
	Max uint64
}

// Discover issues a single broad log query over [0, head] filtered to
// token and topic, and returns the min/max block number observed. If no
// logs are returned there is no history to backfill, and both bounds are
// set to head so tailing starts there.
func Discover(ctx context.Context, client chain.Client, token common.Address, topic common.Hash) (Range, error) {
	head, err := client.HeadBlock(ctx)
	if err != nil {
		return Range{}, fmt.Errorf("discovery: head block: %w", err)
	}

	logs, err := client.FetchLogs(ctx, token, topic, 0, head)
	if err != nil {
		return Range{}, fmt.Errorf("discovery: fetch logs: %w", err)
	}

	if len(logs) == 0 {
		return Range{Min: head, Max: head}, nil
	}

	min, max := logs[0].BlockNumber, logs[0].BlockNumber
	for _, l := range logs[1:] {
		if l.BlockNumber < min {
			min = l.BlockNumber
		}
		if l.BlockNumber > max {
			max = l.BlockNumber
		}
	}
	return Range{Min: min, Max: max}, nil
}
