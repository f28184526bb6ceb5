// Package decode turns a raw Ethereum log into an ERC-20 Transfer tuple.
package decode

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// erc20TransferABI is the minimal ABI fragment for the standard ERC-20
// Transfer event; only its event ID (the topic hash) is used.
const erc20TransferABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = mustTransferTopic()

func mustTransferTopic() common.Hash {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(fmt.Sprintf("decode: parse erc20 abi: %v", err))
	}
	return parsed.Events["Transfer"].ID
}

// Transfer is the in-flight, value-only tuple C1 hands to the caller.
// BlockNumber and TxHash come from the enclosing log envelope, not from
// the decoded event data itself.
type Transfer struct {
	Sender      string
	Recipient   string
	Amount      string
	BlockNumber uint64
	TxHash      string
}

// Decode validates that log is an ERC-20 Transfer event and extracts
// (sender, recipient, amount). It never panics; every structural problem
// in the log maps to a returned error.
func Decode(log types.Log) (Transfer, error) {
	if len(log.Topics) == 0 || log.Topics[0] != TransferTopic {
		return Transfer{}, fmt.Errorf("decode: not a Transfer event")
	}
	if len(log.Topics) < 3 {
		return Transfer{}, fmt.Errorf("decode: missing indexed topics, got %d", len(log.Topics))
	}
	if len(log.Data) < 32 {
		return Transfer{}, fmt.Errorf("decode: data too short, got %d bytes", len(log.Data))
	}

	sender := common.BytesToAddress(log.Topics[1].Bytes())
	recipient := common.BytesToAddress(log.Topics[2].Bytes())
	amount := new(big.Int).SetBytes(log.Data[:32])

	return Transfer{
		Sender:      strings.ToLower(sender.Hex()),
		Recipient:   strings.ToLower(recipient.Hex()),
		Amount:      amount.String(),
		BlockNumber: log.BlockNumber,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
	}, nil
}
