package registry_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/registry"
	"github.com/R3E-Network/property_registry/pkg/testutil"
)

func artifactJSON(t *testing.T, bytecode string) []byte {
	t.Helper()
	raw, err := os.ReadFile("PropertyRegistry.abi.json")
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`{"contractName":"PropertyRegistry","abi":%s,"bytecode":%q}`, raw, bytecode))
}

func TestParseArtifact(t *testing.T) {
	art, err := registry.ParseArtifact(artifactJSON(t, "0x6080604052"))
	require.NoError(t, err)
	assert.Equal(t, "PropertyRegistry", art.ContractName)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, art.Bytecode)
	assert.Contains(t, art.ABI.Methods, registry.MethodListProperties)
}

func TestParseArtifact_Rejects(t *testing.T) {
	tests := map[string][]byte{
		"not json":      []byte("{"),
		"no abi":        []byte(`{"bytecode":"0x60"}`),
		"no bytecode":   []byte(`{"abi":[]}`),
		"wrong methods": []byte(`{"abi":[{"type":"function","name":"listProperties","inputs":[],"outputs":[],"stateMutability":"view"}],"bytecode":"0x60"}`),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := registry.ParseArtifact(data)
			require.Error(t, err)
			assert.Equal(t, chain.KindInvalid, chain.KindOf(err))
		})
	}
}

func TestLoadArtifact_Missing(t *testing.T) {
	_, err := registry.LoadArtifact(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
}

func TestDeploy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PropertyRegistry.json")
	require.NoError(t, os.WriteFile(path, artifactJSON(t, "0x6080"), 0o600))
	art, err := registry.LoadArtifact(path)
	require.NoError(t, err)

	d := &testutil.FakeDeployer{Address: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")}
	res, err := registry.Deploy(context.Background(), d, art)
	require.NoError(t, err)
	assert.Equal(t, d.Address, res.ContractAddress)
	assert.Equal(t, []byte{0x60, 0x80}, d.Bytecode)
}
