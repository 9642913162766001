package contracts

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNoTopics is returned for logs without a topic0, which no schema can match.
	ErrNoTopics = errors.New("log has no topics")

	// ErrUnknownEvent is returned when topic0 matches no event in the binding's schema.
	ErrUnknownEvent = errors.New("unknown event topic")
)

// Binding ties a logical contract name to its address and event schema.
type Binding struct {
	name    string
	address common.Address
	schema  abi.ABI
	byTopic map[common.Hash]*abi.Event
}

// NewBinding indexes the non-anonymous events of schema by topic0.
func NewBinding(name string, address common.Address, schema abi.ABI) (*Binding, error) {
	b := &Binding{
		name:    name,
		address: address,
		schema:  schema,
		byTopic: make(map[common.Hash]*abi.Event, len(schema.Events)),
	}

	for key := range schema.Events {
		event := schema.Events[key]
		if event.Anonymous {
			continue
		}
		b.byTopic[event.ID] = &event
	}

	if len(b.byTopic) == 0 {
		return nil, fmt.Errorf("contract %s: schema declares no events", name)
	}

	return b, nil
}

// Name returns the logical contract name.
func (b *Binding) Name() string { return b.name }

// Address returns the contract address.
func (b *Binding) Address() common.Address { return b.address }

// EventNames returns the declared event names, sorted.
func (b *Binding) EventNames() []string {
	names := make([]string, 0, len(b.byTopic))
	for _, event := range b.byTopic {
		names = append(names, event.RawName)
	}
	slices.Sort(names)
	return names
}

// EventByTopic looks up an event by its topic0 hash.
func (b *Binding) EventByTopic(topic common.Hash) (*abi.Event, bool) {
	event, ok := b.byTopic[topic]
	return event, ok
}

// Decode matches the log's topic0 against the schema and unpacks both
// indexed topics and data into a map keyed by input name.
func (b *Binding) Decode(log *types.Log) (*abi.Event, map[string]any, error) {
	if len(log.Topics) == 0 {
		return nil, nil, ErrNoTopics
	}

	event, ok := b.byTopic[log.Topics[0]]
	if !ok {
		return nil, nil, fmt.Errorf("%w %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	indexed, nonIndexed := splitIndexed(event.Inputs)
	if len(log.Topics)-1 != len(indexed) {
		return event, nil, fmt.Errorf("event %s: expected %d indexed topics, got %d",
			event.RawName, len(indexed), len(log.Topics)-1)
	}

	args := make(map[string]any, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return event, nil, fmt.Errorf("event %s: parse topics: %w", event.RawName, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
		return event, nil, fmt.Errorf("event %s: unpack data: %w", event.RawName, err)
	}

	return event, args, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
