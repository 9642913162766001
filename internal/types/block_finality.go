package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// BlockFinality selects which head the indexer treats as the chain height.
// Scanning only up to a safe or finalized head keeps reorged logs out of the ledger.
type BlockFinality string

const (
	FinalityLatest    BlockFinality = "latest"
	FinalitySafe      BlockFinality = "safe"
	FinalityFinalized BlockFinality = "finalized"
)

var finalityTags = map[BlockFinality]rpc.BlockNumber{
	FinalityLatest:    rpc.LatestBlockNumber,
	FinalitySafe:      rpc.SafeBlockNumber,
	FinalityFinalized: rpc.FinalizedBlockNumber,
}

func (f BlockFinality) String() string {
	return string(f)
}

// BlockTag is the JSON-RPC block tag for the head this finality reads.
func (f BlockFinality) BlockTag() rpc.BlockNumber {
	if tag, ok := finalityTags[f]; ok {
		return tag
	}
	return rpc.LatestBlockNumber
}

// ParseBlockFinality accepts "latest", "safe" or "finalized" in any case.
// An empty value means latest.
func ParseBlockFinality(s string) (BlockFinality, error) {
	f := BlockFinality(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FinalityLatest, nil
	}
	if _, ok := finalityTags[f]; !ok {
		return "", fmt.Errorf("invalid chain finality %q: must be latest, safe or finalized", s)
	}
	return f, nil
}
