package sqlite

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", hexMeddler[common.Hash]{size: common.HashLength, parse: common.BytesToHash})
	meddler.Register("address", hexMeddler[common.Address]{size: common.AddressLength, parse: common.BytesToAddress})
}

type hexValue interface {
	common.Hash | common.Address
	Hex() string
}

// hexMeddler stores a fixed-size chain identifier in a NOT NULL TEXT column as 0x-hex.
// Reading a value of the wrong length is an error rather than a silent pad.
type hexMeddler[T hexValue] struct {
	size  int
	parse func([]byte) T
}

func (m hexMeddler[T]) PreRead(any) (any, error) {
	return new(string), nil
}

func (m hexMeddler[T]) PostRead(fieldAddr, scanTarget any) error {
	text, ok := scanTarget.(*string)
	if !ok {
		return fmt.Errorf("expected *string scan target, got %T", scanTarget)
	}

	field, ok := fieldAddr.(*T)
	if !ok {
		return fmt.Errorf("expected *%T field, got %T", *new(T), fieldAddr)
	}

	raw, err := hexutil.Decode(*text)
	if err != nil {
		return fmt.Errorf("invalid hex column value %q: %w", *text, err)
	}
	if len(raw) != m.size {
		return fmt.Errorf("column value %q has %d bytes, want %d", *text, len(raw), m.size)
	}

	*field = m.parse(raw)

	return nil
}

func (m hexMeddler[T]) PreWrite(field any) (any, error) {
	v, ok := field.(T)
	if !ok {
		return nil, fmt.Errorf("expected %T, got %T", *new(T), field)
	}

	return v.Hex(), nil
}
