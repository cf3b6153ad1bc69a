package chain_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/property_registry/internal/chain"
)

// Hardhat's first well-known development account.
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestParsePrivateKey(t *testing.T) {
	for _, in := range []string{devKey, devKey[2:], "  " + devKey + "\n"} {
		key, err := chain.ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, devAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	}

	_, err := chain.ParsePrivateKey("")
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))

	_, err = chain.ParsePrivateKey("0xzz-secret-zz")
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
	assert.NotContains(t, err.Error(), "secret")
}

func TestNewWallet_AdoptsEndpointChainID(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{
		"eth_chainId":    func([]json.RawMessage) (interface{}, *rpcFailure) { return "0x7a69", nil },
		"eth_getBalance": func([]json.RawMessage) (interface{}, *rpcFailure) { return "0xde0b6b3a7640000", nil },
	})
	client := newTestClient(t, server.URL, 0)

	w, err := chain.NewWallet(context.Background(), client, devKey)
	require.NoError(t, err)
	assert.Equal(t, devAddress, w.Address().Hex())
	assert.Equal(t, big.NewInt(int64(chain.HardhatChainID)), w.ChainID())

	balance, err := w.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
}

func TestNewWallet_RejectsBadKeyWithoutNetwork(t *testing.T) {
	server, calls := newRPCServer(t, map[string]rpcHandler{})
	client := newTestClient(t, server.URL, 0)

	_, err := chain.NewWallet(context.Background(), client, "not-a-key")
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
	assert.Zero(t, *calls)
}

func TestWallet_DeployRequiresBytecode(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{})
	client := newTestClient(t, server.URL, chain.HardhatChainID)
	w, err := chain.NewWallet(context.Background(), client, devKey)
	require.NoError(t, err)

	_, err = w.Deploy(context.Background(), abi.ABI{}, nil)
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
}
