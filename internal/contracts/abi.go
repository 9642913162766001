package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// artifact is the subset of a compiler build artifact that carries the ABI.
type artifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFile reads an ABI from disk. Both a plain ABI array and a build
// artifact object with an "abi" field are accepted.
func LoadABIFile(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file: %w", err)
	}

	parsed, err := ParseABI(data)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%s: %w", path, err)
	}

	return parsed, nil
}

// ParseABI parses ABI JSON in either accepted layout.
func ParseABI(data []byte) (abi.ABI, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var a artifact
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI artifact: %w", err)
		}
		if len(a.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("artifact has no abi field")
		}
		trimmed = a.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(trimmed))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return parsed, nil
}

// ABIFromSignatures builds an ABI holding only the given events.
func ABIFromSignatures(signatures []string) (abi.ABI, error) {
	parsed := abi.ABI{Events: make(map[string]abi.Event, len(signatures))}

	for _, sig := range signatures {
		event, err := ParseEventSignature(sig)
		if err != nil {
			return abi.ABI{}, err
		}

		if _, exists := parsed.Events[event.Name]; exists {
			return abi.ABI{}, fmt.Errorf("duplicate event %s", event.Name)
		}
		parsed.Events[event.Name] = *event
	}

	return parsed, nil
}
