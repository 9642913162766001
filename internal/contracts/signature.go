package contracts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	eventNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	paramNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ParseEventSignature turns a human-readable event declaration into an abi.Event.
// Supported formats:
//   - "event Transfer(address indexed from, address indexed to, uint256 value)"
//   - "Transfer(address indexed from, address indexed to, uint256 value)"
//   - "Transfer(address,address,uint256)"
//
// Tuple parameters cannot be expressed this way; use an ABI file for those.
func ParseEventSignature(sig string) (*abi.Event, error) {
	sig = strings.TrimSpace(sig)
	sig = strings.TrimSpace(strings.TrimPrefix(sig, "event "))

	if sig == "" {
		return nil, fmt.Errorf("empty signature")
	}

	openParen := strings.Index(sig, "(")
	if openParen == -1 {
		return nil, fmt.Errorf("invalid signature: missing opening parenthesis")
	}

	closeParen := strings.LastIndex(sig, ")")
	if closeParen <= openParen {
		return nil, fmt.Errorf("invalid signature: malformed parentheses")
	}

	anonymous := false
	if rest := strings.TrimSpace(sig[closeParen+1:]); rest != "" {
		if rest != "anonymous" {
			return nil, fmt.Errorf("invalid signature: unexpected trailing '%s'", rest)
		}
		anonymous = true
	}

	name := strings.TrimSpace(sig[:openParen])
	if !eventNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid event name '%s'", name)
	}

	inputs, err := parseParameters(sig[openParen+1 : closeParen])
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", name, err)
	}

	event := abi.NewEvent(name, name, anonymous, inputs)
	return &event, nil
}

func parseParameters(params string) (abi.Arguments, error) {
	params = strings.TrimSpace(params)
	if params == "" {
		return abi.Arguments{}, nil
	}

	if strings.ContainsAny(params, "()") {
		return nil, fmt.Errorf("tuple parameters are not supported in signatures")
	}

	parts := strings.Split(params, ",")
	args := make(abi.Arguments, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for i, part := range parts {
		arg, err := parseParameter(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parameter %d '%s': %w", i, strings.TrimSpace(part), err)
		}

		if arg.Name != "" {
			if seen[arg.Name] {
				return nil, fmt.Errorf("duplicate parameter name: %s", arg.Name)
			}
			seen[arg.Name] = true
		}

		args = append(args, arg)
	}

	return args, nil
}

// parseParameter parses "type", "type name", "type indexed" or "type indexed name".
func parseParameter(param string) (abi.Argument, error) {
	fields := strings.Fields(param)
	if len(fields) == 0 {
		return abi.Argument{}, fmt.Errorf("empty parameter")
	}

	typ, err := abi.NewType(canonicalType(fields[0]), "", nil)
	if err != nil {
		return abi.Argument{}, fmt.Errorf("invalid type: %w", err)
	}

	arg := abi.Argument{Type: typ}

	switch len(fields) {
	case 1:
	case 2: //nolint:mnd
		if fields[1] == "indexed" {
			arg.Indexed = true
		} else {
			arg.Name = fields[1]
		}
	case 3: //nolint:mnd
		if fields[1] != "indexed" {
			return abi.Argument{}, fmt.Errorf("expected 'indexed' keyword, got '%s'", fields[1])
		}
		arg.Indexed = true
		arg.Name = fields[2]
	default:
		return abi.Argument{}, fmt.Errorf("too many parts in parameter definition")
	}

	if arg.Name != "" && !paramNameRe.MatchString(arg.Name) {
		return abi.Argument{}, fmt.Errorf("invalid parameter name: %s", arg.Name)
	}

	return arg, nil
}

// canonicalType expands the Solidity aliases uint, int and byte, keeping any array suffix.
func canonicalType(typ string) string {
	base, suffix := typ, ""
	if i := strings.Index(typ, "["); i != -1 {
		base, suffix = typ[:i], typ[i:]
	}

	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	case "byte":
		base = "bytes1"
	}

	return base + suffix
}
