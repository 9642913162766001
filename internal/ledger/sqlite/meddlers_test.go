package sqlite

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/skillswap/chainledger/pkg/ledger"
	"github.com/stretchr/testify/require"
)

func TestHexMeddlers_ContractEventRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := testEvent("mentorRegistry", "MentorRegistered", registryAddr, 42, 3)
	inserted, err := store.Append(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)

	var address, blockHash, txHash string
	require.NoError(t, store.db.QueryRow(
		`SELECT contract_address, block_hash, tx_hash FROM contract_events WHERE log_index = 3`,
	).Scan(&address, &blockHash, &txHash))
	require.Equal(t, registryAddr.Hex(), address)
	require.Equal(t, event.BlockHash.Hex(), blockHash)
	require.Equal(t, event.TransactionHash.Hex(), txHash)

	var row dbEvent
	require.NoError(t, meddler.QueryRow(store.db, &row,
		`SELECT `+columns("")+` FROM contract_events WHERE tx_hash = ?`, txHash))
	require.Equal(t, registryAddr, row.ContractAddress)
	require.Equal(t, event.BlockHash, row.BlockHash)
	require.Equal(t, event.TransactionHash, row.TxHash)
}

func TestHexMeddlers_RejectMalformedColumns(t *testing.T) {
	tests := []struct {
		name      string
		blockHash string
		address   string
		errMsg    string
	}{
		{name: "short hash", blockHash: "0x01", address: registryAddr.Hex(), errMsg: "has 1 bytes, want 32"},
		{name: "not hex", blockHash: "block-42", address: registryAddr.Hex(), errMsg: "invalid hex column value"},
		{name: "long address", blockHash: common.Hash{}.Hex(), address: common.Hash{}.Hex(), errMsg: "has 32 bytes, want 20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)

			_, err := store.db.Exec(`
				INSERT INTO contract_events (contract_name, contract_address, event_name, block_number,
					block_hash, tx_hash, tx_index, log_index, args, block_timestamp)
				VALUES ('mentorRegistry', ?, 'MentorRegistered', 1, ?, ?, 0, 0, '{}', 0)`,
				tt.address, tt.blockHash, common.HexToHash("0xaa").Hex())
			require.NoError(t, err)

			_, err = store.EventsByContract(context.Background(), ledger.ContractQuery{ContractName: "mentorRegistry"})
			require.ErrorContains(t, err, tt.errMsg)
			require.True(t, ledger.IsStoreError(err))
		})
	}
}

func TestHexMeddler_PreWriteRejectsOtherTypes(t *testing.T) {
	m := hexMeddler[common.Address]{size: common.AddressLength, parse: common.BytesToAddress}

	saved, err := m.PreWrite(mentor)
	require.NoError(t, err)
	require.Equal(t, mentor.Hex(), saved)

	_, err = m.PreWrite(common.Hash{})
	require.ErrorContains(t, err, "expected common.Address")
}
