package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/skillswap/chainledger/pkg/config"
)

// Registry is the fixed set of contract bindings the indexer scans.
// It is built once and never modified.
type Registry struct {
	bindings  []*Binding
	byName    map[string]*Binding
	byAddress map[common.Address]*Binding
}

// NewRegistry builds bindings from configuration, in configuration order.
func NewRegistry(cfgs []config.ContractConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no contracts configured")
	}

	r := &Registry{
		bindings:  make([]*Binding, 0, len(cfgs)),
		byName:    make(map[string]*Binding, len(cfgs)),
		byAddress: make(map[common.Address]*Binding, len(cfgs)),
	}

	for i, cfg := range cfgs {
		binding, err := bindingFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("contract[%d]: %w", i, err)
		}

		if err := r.add(binding); err != nil {
			return nil, fmt.Errorf("contract[%d]: %w", i, err)
		}
	}

	return r, nil
}

// NewRegistryFromBindings builds a registry from already constructed bindings.
func NewRegistryFromBindings(bindings ...*Binding) (*Registry, error) {
	r := &Registry{
		byName:    make(map[string]*Binding, len(bindings)),
		byAddress: make(map[common.Address]*Binding, len(bindings)),
	}

	for _, b := range bindings {
		if err := r.add(b); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) add(b *Binding) error {
	if b.name == "" {
		return fmt.Errorf("contract name is required")
	}
	if _, dup := r.byName[b.name]; dup {
		return fmt.Errorf("duplicate contract name '%s'", b.name)
	}
	if other, dup := r.byAddress[b.address]; dup {
		return fmt.Errorf("contract '%s' shares address %s with '%s'", b.name, b.address.Hex(), other.name)
	}

	r.bindings = append(r.bindings, b)
	r.byName[b.name] = b
	r.byAddress[b.address] = b

	return nil
}

func bindingFromConfig(cfg config.ContractConfig) (*Binding, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid address '%s'", cfg.Address)
	}

	schema := abi.ABI{Events: map[string]abi.Event{}}

	if cfg.ABIPath != "" {
		loaded, err := LoadABIFile(cfg.ABIPath)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", cfg.Name, err)
		}
		schema = loaded
	}

	if len(cfg.Events) > 0 {
		fromSigs, err := ABIFromSignatures(cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", cfg.Name, err)
		}
		for name, event := range fromSigs.Events {
			if existing, ok := schema.Events[name]; ok && existing.ID != event.ID {
				return nil, fmt.Errorf("contract %s: event %s conflicts with ABI file", cfg.Name, name)
			}
			schema.Events[name] = event
		}
	}

	return NewBinding(cfg.Name, common.HexToAddress(cfg.Address), schema)
}

// All returns the bindings in configuration order.
func (r *Registry) All() []*Binding {
	out := make([]*Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return len(r.bindings)
}

// ByName looks up a binding by logical contract name.
func (r *Registry) ByName(name string) (*Binding, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// ByAddress looks up a binding by address; the hex string may use any case.
func (r *Registry) ByAddress(address string) (*Binding, bool) {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return nil, false
	}
	b, ok := r.byAddress[common.HexToAddress(address)]
	return b, ok
}
