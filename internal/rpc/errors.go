package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/skillswap/chainledger/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// TransportError reports that the node was unreachable, timed out or answered
// with something unusable. The indexer retries the whole batch on it.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(method string, err error) error {
	return &TransportError{Method: method, Err: err}
}

// IsTransportError reports whether err wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// DecodeError reports that a single log did not match its contract schema.
// It is attached to the RawLog rather than returned; the log is skipped.
type DecodeError struct {
	TxHash   common.Hash
	LogIndex uint
	Topic    common.Hash
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s#%d (topic %s): %v", e.TxHash.Hex(), e.LogIndex, e.Topic.Hex(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTooManyResultsError checks if the error is an RPC "too many results" error (DataError with message in ErrorData).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	return false, ""
}

// ParseSuggestedBlockRange extracts the block range a node suggests in its
// "too many results" message, e.g. "Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(msg string) (fromBlock, toBlock uint64, ok bool) {
	matches := suggestedRangeRe.FindStringSubmatch(msg)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := internalcommon.ParseUint64orHex(&matches[1])
	to, err2 := internalcommon.ParseUint64orHex(&matches[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}

// errorType buckets transport failures for the rpc error metric.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return "connection"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	if tooMany, _ := IsTooManyResultsError(err); tooMany {
		return "too_many_results"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "429"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "rate limit"):
		return "rate_limit"
	case strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "504"),
		strings.Contains(errStr, "bad gateway"),
		strings.Contains(errStr, "service unavailable"):
		return "server"
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return "rpc"
	}

	return "other"
}
