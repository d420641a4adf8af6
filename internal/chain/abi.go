package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrShortInput is returned when calldata is too short to carry a selector.
var ErrShortInput = errors.New("calldata shorter than a selector")

// Selector is the 4-byte function identifier at the head of calldata.
type Selector [4]byte

// SelectorOf hashes a canonical signature such as "transfer(address,uint256)".
func SelectorOf(signature string) Selector {
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(signature)))
	return sel
}

// SelectorFromInput returns the selector of calldata.
func SelectorFromInput(input []byte) (Selector, bool) {
	var sel Selector
	if len(input) < 4 {
		return sel, false
	}
	copy(sel[:], input[:4])
	return sel, true
}

// Hex renders the selector as 0x-prefixed hex.
func (s Selector) Hex() string {
	return fmt.Sprintf("0x%x", s[:])
}

// MustParseABI parses a JSON ABI definition and panics on malformed input.
// It is meant for package-level ABI constants.
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Decode resolves the method targeted by calldata and unpacks its arguments.
func Decode(parsed abi.ABI, input []byte) (*abi.Method, []any, error) {
	if len(input) < 4 {
		return nil, nil, ErrShortInput
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	return method, args, nil
}

// MustPack encodes a call and panics when the arguments do not match the
// ABI. It is intended for hand-written calls whose shape is fixed.
func MustPack(parsed abi.ABI, name string, args ...any) []byte {
	data, err := parsed.Pack(name, args...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", name, err))
	}
	return data
}

// PackReturn encodes the return values of method name.
func PackReturn(parsed abi.ABI, name string, values ...any) ([]byte, error) {
	method, ok := parsed.Methods[name]
	if !ok {
		return nil, fmt.Errorf("method %s not found", name)
	}
	return method.Outputs.Pack(values...)
}
