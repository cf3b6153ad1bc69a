package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/R3E-Network/property_registry/internal/metrics"
)

// DefaultTxWaitTimeout is the default timeout for waiting for a transaction to be mined.
const DefaultTxWaitTimeout = 2 * time.Minute

// TxResult summarizes a mined transaction.
type TxResult struct {
	TxHash          common.Hash    `json:"tx_hash"`
	BlockNumber     uint64         `json:"block_number"`
	GasUsed         uint64         `json:"gas_used"`
	ContractAddress common.Address `json:"contract_address,omitempty"`
}

// ParsePrivateKey parses a hex private key with or without the 0x prefix.
// The key itself never appears in the returned error.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, ConfigError("PRIVATE_KEY is required for write operations")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, ConfigError("PRIVATE_KEY is not a valid secp256k1 hex key")
	}
	return key, nil
}

// Wallet is a Client that can sign and submit transactions.
type Wallet struct {
	*Client
	key  *ecdsa.PrivateKey
	from common.Address

	waitTimeout time.Duration
}

// NewWallet binds a signing key to a client. The chain id is resolved from
// the endpoint when the configuration did not pin one.
func NewWallet(ctx context.Context, client *Client, privateKeyHex string) (*Wallet, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if client.ChainID() == nil {
		if err := client.VerifyChainID(ctx); err != nil {
			return nil, err
		}
	}
	return &Wallet{
		Client:      client,
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		waitTimeout: DefaultTxWaitTimeout,
	}, nil
}

// Address returns the signer address.
func (w *Wallet) Address() common.Address { return w.from }

// Balance returns the signer's balance in wei.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.BalanceAt(ctx, w.from)
}

// Transact signs and submits a call with the given calldata and value, then
// waits for it to be mined. Gas and fees are estimated by the node; a revert
// during estimation is reported with its reason.
func (w *Wallet) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*TxResult, error) {
	opts, err := w.transactOpts(value)
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	err = w.do(ctx, "eth_sendRawTransaction", func(cctx context.Context) error {
		opts.Context = cctx
		bound := bind.NewBoundContract(to, abi.ABI{}, w.eth, w.eth, w.eth)
		sent, err := bound.RawTransact(opts, data)
		tx = sent
		return err
	})
	if err != nil {
		return nil, err
	}
	return w.WaitMined(ctx, tx)
}

// Deploy publishes a contract and waits for its receipt.
func (w *Wallet) Deploy(ctx context.Context, parsed abi.ABI, bytecode []byte, params ...interface{}) (*TxResult, error) {
	if len(bytecode) == 0 {
		return nil, ConfigError("contract bytecode is empty")
	}
	opts, err := w.transactOpts(nil)
	if err != nil {
		return nil, err
	}

	var (
		addr common.Address
		tx   *types.Transaction
	)
	err = w.do(ctx, "deploy", func(cctx context.Context) error {
		opts.Context = cctx
		a, sent, _, err := bind.DeployContract(opts, parsed, bytecode, w.eth, params...)
		addr, tx = a, sent
		return err
	})
	if err != nil {
		return nil, err
	}

	res, err := w.WaitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.ContractAddress = addr
	return res, nil
}

// WaitMined blocks until tx is mined or the wait timeout expires. A receipt
// with failed status is reported as a revert.
func (w *Wallet) WaitMined(ctx context.Context, tx *types.Transaction) (*TxResult, error) {
	wctx, cancel := context.WithTimeout(ctx, w.waitTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := bind.WaitMined(wctx, w.eth, tx)
	metrics.RecordRPC("wait_mined", time.Since(start), err)
	if err != nil {
		return nil, Classify("wait_mined", fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err))
	}

	res := &TxResult{
		TxHash:      receipt.TxHash,
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return res, NewError(KindRevert, "wait_mined",
			fmt.Sprintf("transaction %s reverted in block %d", receipt.TxHash.Hex(), res.BlockNumber), nil)
	}
	return res, nil
}

func (w *Wallet) transactOpts(value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.ChainID())
	if err != nil {
		return nil, ConfigError("build transactor: %v", err)
	}
	if value != nil && value.Sign() > 0 {
		opts.Value = new(big.Int).Set(value)
	}
	return opts, nil
}
