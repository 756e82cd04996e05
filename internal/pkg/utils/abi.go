package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseAbi parses an embedded ABI definition. Definitions ship with the
// binary, so a malformed one is a build defect and panics at startup.
func ParseAbi(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
