// Package chain provides Ethereum JSON-RPC access for the property registry.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/property_registry/internal/metrics"
)

// DefaultTimeout bounds a single read RPC.
const DefaultTimeout = 30 * time.Second

// Client is a read-only connection to an EVM node. It holds no registry
// state; one Client may serve any number of concurrent callers.
type Client struct {
	mu      sync.RWMutex
	eth     *ethclient.Client
	network Network
	chainID *big.Int
	timeout time.Duration
	limiter *rate.Limiter
}

// Config holds client configuration.
type Config struct {
	Network Network
	Timeout time.Duration
	// RateLimit caps RPC operations per second. Zero disables throttling.
	RateLimit float64
	Burst     int
}

// NewClient dials the configured endpoint. For HTTP endpoints no request is
// made until the first call.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Network.RPCURL == "" {
		return nil, ConfigError("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.Network.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, Classify("dial", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{
		eth:     ethclient.NewClient(rpcClient),
		network: cfg.Network,
		timeout: timeout,
		limiter: limiter,
	}
	if cfg.Network.ChainID != 0 {
		c.chainID = new(big.Int).SetUint64(cfg.Network.ChainID)
	}
	return c, nil
}

// Dial creates a client and verifies that the endpoint serves the expected chain.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.VerifyChainID(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Network returns the network the client was configured for.
func (c *Client) Network() Network { return c.network }

// ChainID returns the chain id in use, or nil before it is known.
func (c *Client) ChainID() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chainID == nil {
		return nil
	}
	return new(big.Int).Set(c.chainID)
}

// VerifyChainID compares eth_chainId with the configured id. When no id was
// configured the endpoint's id is adopted.
func (c *Client) VerifyChainID(ctx context.Context) error {
	var remote *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context) error {
		id, err := c.eth.ChainID(ctx)
		remote = id
		return err
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID == nil {
		c.chainID = remote
		return nil
	}
	if c.chainID.Cmp(remote) != 0 {
		return ConfigError("wrong network: endpoint %s serves chain %s, expected %s", c.network.Redacted(), remote, c.chainID)
	}
	return nil
}

// Call executes a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context) error {
		res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		out = res
		return err
	})
	return out, err
}

// CodeAt returns the runtime bytecode deployed at addr.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	err := c.do(ctx, "eth_getCode", func(ctx context.Context) error {
		res, err := c.eth.CodeAt(ctx, addr, nil)
		code = res
		return err
	})
	return code, err
}

// BlockNumber returns the current block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		res, err := c.eth.BlockNumber(ctx)
		n = res
		return err
	})
	return n, err
}

// BalanceAt returns the latest balance of addr in wei.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.do(ctx, "eth_getBalance", func(ctx context.Context) error {
		res, err := c.eth.BalanceAt(ctx, addr, nil)
		bal = res
		return err
	})
	return bal, err
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// do runs one throttled, time-bounded RPC operation and classifies its error.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Classify(op, fmt.Errorf("rate limiter: %w", err))
		}
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	metrics.RecordRPC(op, time.Since(start), err)
	return Classify(op, err)
}
