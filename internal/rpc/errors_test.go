package rpc

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type mockDataError struct {
	data any
	msg  string
}

func (m *mockDataError) Error() string {
	return m.msg
}

func (m *mockDataError) ErrorData() any {
	return m.data
}

func TestIsTooManyResultsError(t *testing.T) {
	t.Parallel()

	const limitMsg = "Query returned more than 10000 results. Try with this block range [0x4dbf0ce, 0x4dbf4b5]."

	tests := []struct {
		name      string
		err       error
		wantMatch bool
	}{
		{name: "nil", err: nil},
		{name: "plain error", err: errors.New("Query returned more than 10000 results")},
		{name: "data error", err: &mockDataError{data: limitMsg, msg: "query limit"}, wantMatch: true},
		{
			name:      "wrapped in transport error",
			err:       newTransportError("eth_getLogs", &mockDataError{data: limitMsg, msg: "query limit"}),
			wantMatch: true,
		},
		{name: "unrelated data", err: &mockDataError{data: "execution reverted", msg: "reverted"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, data := IsTooManyResultsError(tt.err)
			require.Equal(t, tt.wantMatch, match)
			if tt.wantMatch {
				require.Equal(t, limitMsg, data)
			}
		})
	}
}

func TestParseSuggestedBlockRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg    string
		from   uint64
		to     uint64
		wantOK bool
	}{
		{msg: "Try with this block range [0x4dbf0ce, 0x4dbf4b5].", from: 81_522_894, to: 81_523_893, wantOK: true},
		{msg: "range [0xA,0xff] suggested", from: 10, to: 255, wantOK: true},
		{msg: "Query returned more than 10000 results."},
		{msg: "Try with this block range [81524942, 81525941]."},
		{msg: ""},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			t.Parallel()

			from, to, ok := ParseSuggestedBlockRange(tt.msg)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.from, from)
			require.Equal(t, tt.to, to)
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := fmt.Errorf("batch 1-100: %w", newTransportError("eth_getLogs", cause))

	require.True(t, IsTransportError(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "batch 1-100: eth_getLogs: connection refused", err.Error())
	require.False(t, IsTransportError(cause))
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	cause := errors.New("unpack data: abi: improperly formatted output")
	err := &DecodeError{
		TxHash:   common.HexToHash("0x01"),
		LogIndex: 4,
		Topic:    common.HexToHash("0x02"),
		Err:      cause,
	}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "#4")
	require.Contains(t, err.Error(), common.HexToHash("0x02").Hex())
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), expected: "timeout"},
		{name: "canceled", err: context.Canceled, expected: "canceled"},
		{name: "refused", err: syscall.ECONNREFUSED, expected: "connection"},
		{name: "rate limited", err: errors.New("HTTP 429 Too Many Requests"), expected: "rate_limit"},
		{name: "gateway", err: errors.New("502 Bad Gateway"), expected: "server"},
		{
			name:     "too many results",
			err:      &mockDataError{data: "Query returned more than 10000 results", msg: "x"},
			expected: "too_many_results",
		},
		{name: "other", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, errorType(tt.err))
		})
	}
}
