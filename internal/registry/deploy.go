package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/property_registry/internal/chain"
)

// DefaultArtifactPath is where hardhat writes the compiled registry.
const DefaultArtifactPath = "artifacts/contracts/PropertyRegistry.sol/PropertyRegistry.json"

// Artifact is a compiled contract as emitted by hardhat.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

// Deployer creates contracts.
type Deployer interface {
	Deploy(ctx context.Context, parsed abi.ABI, bytecode []byte, params ...interface{}) (*chain.TxResult, error)
}

// LoadArtifact reads and parses a hardhat artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, chain.NewError(chain.KindConfig, "load artifact", fmt.Sprintf("read %s (run the contract compile first)", path), err)
	}
	return ParseArtifact(data)
}

// ParseArtifact extracts the ABI and creation bytecode from artifact JSON and
// checks the ABI exposes the registry methods this client encodes against.
func ParseArtifact(data []byte) (*Artifact, error) {
	const op = "parse artifact"
	if !gjson.ValidBytes(data) {
		return nil, chain.InvalidError(op, "artifact is not valid JSON")
	}

	abiRaw := gjson.GetBytes(data, "abi")
	if !abiRaw.IsArray() {
		return nil, chain.InvalidError(op, "artifact has no abi array")
	}
	parsed, err := abi.JSON(strings.NewReader(abiRaw.Raw))
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, op, "abi does not parse", err)
	}

	code := strings.TrimSpace(gjson.GetBytes(data, "bytecode").String())
	if code == "" || code == "0x" {
		return nil, chain.InvalidError(op, "artifact has no bytecode")
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, op, "bytecode is not hex", err)
	}

	for name, want := range contractABI.Methods {
		got, ok := parsed.Methods[name]
		if !ok {
			return nil, chain.InvalidError(op, "artifact abi lacks %s", name)
		}
		if got.Sig != want.Sig {
			return nil, chain.InvalidError(op, "artifact %s signature %s, want %s", name, got.Sig, want.Sig)
		}
	}

	return &Artifact{
		ContractName: gjson.GetBytes(data, "contractName").String(),
		ABI:          parsed,
		Bytecode:     bytecode,
	}, nil
}

// Deploy creates a new registry from art and waits for it to be mined.
func Deploy(ctx context.Context, d Deployer, art *Artifact) (*chain.TxResult, error) {
	if art == nil {
		return nil, chain.InvalidError("deploy", "no artifact")
	}
	res, err := d.Deploy(ctx, art.ABI, art.Bytecode)
	if err != nil {
		return nil, chain.Classify("deploy", err)
	}
	return res, nil
}
