// Package registry reads and writes the PropertyRegistry contract.
package registry

import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method names.
const (
	MethodListProperties = "listProperties"
	MethodUpsert         = "upsert"
	MethodSetProperties  = "setProperties"
	MethodInvest         = "invest"
)

//go:embed PropertyRegistry.abi.json
var abiJSON string

var contractABI = mustParseABI(abiJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("registry: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed PropertyRegistry interface.
func ABI() abi.ABI { return contractABI }
