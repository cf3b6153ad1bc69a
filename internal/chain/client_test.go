package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/property_registry/internal/chain"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcFailure struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcHandler func(params []json.RawMessage) (interface{}, *rpcFailure)

// newRPCServer answers JSON-RPC calls from a method table and counts requests.
func newRPCServer(t *testing.T, methods map[string]rpcHandler) (*httptest.Server, *int64) {
	t.Helper()
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		h, ok := methods[req.Method]
		if !ok {
			resp["error"] = rpcFailure{Code: -32601, Message: "the method " + req.Method + " does not exist"}
		} else if result, failure := h(req.Params); failure != nil {
			resp["error"] = failure
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(t *testing.T, url string, chainID uint64) *chain.Client {
	t.Helper()
	client, err := chain.NewClient(context.Background(), chain.Config{
		Network: chain.Network{Name: "test", RPCURL: url, ChainID: chainID},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := chain.NewClient(context.Background(), chain.Config{})
	require.Error(t, err)
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
}

func TestClient_Call(t *testing.T) {
	registry := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	server, calls := newRPCServer(t, map[string]rpcHandler{
		"eth_call": func(params []json.RawMessage) (interface{}, *rpcFailure) {
			var msg struct {
				To    string `json:"to"`
				Input string `json:"input"`
				Data  string `json:"data"`
			}
			if err := json.Unmarshal(params[0], &msg); err != nil {
				t.Errorf("decode call msg: %v", err)
			}
			if !common.IsHexAddress(msg.To) || common.HexToAddress(msg.To) != registry {
				t.Errorf("to = %s, want %s", msg.To, registry.Hex())
			}
			return "0xdeadbeef", nil
		},
	})

	client := newTestClient(t, server.URL, chain.HardhatChainID)
	out, err := client.Call(context.Background(), registry, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, out)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestClient_VerifyChainID(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{
		"eth_chainId": func([]json.RawMessage) (interface{}, *rpcFailure) { return "0x7a69", nil },
	})

	t.Run("matches", func(t *testing.T) {
		client := newTestClient(t, server.URL, chain.HardhatChainID)
		require.NoError(t, client.VerifyChainID(context.Background()))
	})

	t.Run("adopts remote id", func(t *testing.T) {
		client := newTestClient(t, server.URL, 0)
		require.NoError(t, client.VerifyChainID(context.Background()))
		assert.Equal(t, uint64(chain.HardhatChainID), client.ChainID().Uint64())
	})

	t.Run("wrong network", func(t *testing.T) {
		client := newTestClient(t, server.URL, chain.SepoliaChainID)
		err := client.VerifyChainID(context.Background())
		require.Error(t, err)
		assert.Equal(t, chain.KindConfig, chain.KindOf(err))
		assert.Contains(t, chain.MessageOf(err), "wrong network")
	})
}

func TestClient_BlockNumber(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{
		"eth_blockNumber": func([]json.RawMessage) (interface{}, *rpcFailure) { return "0x2a", nil },
	})
	client := newTestClient(t, server.URL, chain.HardhatChainID)

	n, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestClient_RevertReasonIsExtracted(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{
		"eth_call": func([]json.RawMessage) (interface{}, *rpcFailure) {
			return nil, &rpcFailure{
				Code:    3,
				Message: "execution reverted: insufficient availability",
				Data:    revertData(t, "insufficient availability"),
			}
		},
	})
	client := newTestClient(t, server.URL, chain.HardhatChainID)

	_, err := client.Call(context.Background(), common.Address{}, []byte{1, 2, 3, 4})
	require.Error(t, err)
	assert.Equal(t, chain.KindRevert, chain.KindOf(err))
	assert.Equal(t, "execution reverted: insufficient availability", chain.MessageOf(err))
}

func TestClient_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url, chain.HardhatChainID)
	_, err := client.Call(context.Background(), common.Address{}, nil)
	require.Error(t, err)
	assert.Equal(t, chain.KindTransport, chain.KindOf(err))

	var ce *chain.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "eth_call", ce.Op)
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	server, _ := newRPCServer(t, map[string]rpcHandler{
		"eth_blockNumber": func([]json.RawMessage) (interface{}, *rpcFailure) { return "0x1", nil },
	})
	client, err := chain.NewClient(context.Background(), chain.Config{
		Network:   chain.Network{RPCURL: server.URL, ChainID: chain.HardhatChainID},
		RateLimit: 0.001,
		Burst:     1,
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.BlockNumber(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.BlockNumber(ctx)
	require.Error(t, err)
	assert.Equal(t, chain.KindTransport, chain.KindOf(err))
}
