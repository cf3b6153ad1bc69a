// Package testutil provides in-memory fakes of the chain for tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/registry"
)

// FakeRegistry is an in-memory PropertyRegistry. It decodes calldata with the
// contract ABI and applies the contract's semantics, so it can stand in for
// both the registry Caller and Transactor.
type FakeRegistry struct {
	mu      sync.Mutex
	abi     abi.ABI
	records []registry.Record
	calls   int
	txs     int
	values  []*big.Int

	// CallErr, when set, fails every read.
	CallErr error
	// TxErr, when set, fails every transaction.
	TxErr error
	// Block is reported as the inclusion block of each transaction.
	Block uint64
}

// NewFakeRegistry creates a fake holding records.
func NewFakeRegistry(records ...registry.Record) *FakeRegistry {
	f := &FakeRegistry{abi: registry.ABI(), Block: 1}
	for _, r := range records {
		f.records = append(f.records, clone(r))
	}
	return f
}

// Call answers listProperties.
func (f *FakeRegistry) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.CallErr != nil {
		return nil, f.CallErr
	}

	method, err := f.method(data)
	if err != nil {
		return nil, err
	}
	if method.Name != registry.MethodListProperties {
		return nil, fmt.Errorf("fake registry: %s is not a view", method.Name)
	}
	out := make([]registry.Record, len(f.records))
	for i, r := range f.records {
		out[i] = clone(r)
	}
	return method.Outputs.Pack(out)
}

// Transact applies upsert, setProperties and invest.
func (f *FakeRegistry) Transact(_ context.Context, _ common.Address, data []byte, value *big.Int) (*chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs++
	f.values = append(f.values, value)
	if f.TxErr != nil {
		return nil, f.TxErr
	}

	method, err := f.method(data)
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case registry.MethodUpsert:
		rec := *abi.ConvertType(args[0], new(registry.Record)).(*registry.Record)
		index := args[1].(*big.Int)
		if index.IsUint64() && index.Uint64() < uint64(len(f.records)) {
			f.records[index.Uint64()] = rec
		} else {
			f.records = append(f.records, rec)
		}
	case registry.MethodSetProperties:
		f.records = *abi.ConvertType(args[0], new([]registry.Record)).(*[]registry.Record)
	case registry.MethodInvest:
		slug := args[0].(string)
		qty := args[1].(*big.Int)
		found := false
		for i := range f.records {
			if f.records[i].Slug != slug {
				continue
			}
			found = true
			if f.records[i].Available.Cmp(qty) < 0 {
				return nil, errors.New("execution reverted: insufficient availability")
			}
			f.records[i].Available = new(big.Int).Sub(f.records[i].Available, qty)
		}
		if !found {
			return nil, errors.New("execution reverted: unknown property")
		}
	default:
		return nil, fmt.Errorf("fake registry: %s is not a transaction", method.Name)
	}

	return &chain.TxResult{
		TxHash:      common.BigToHash(big.NewInt(int64(f.txs))),
		BlockNumber: f.Block,
		GasUsed:     21000,
	}, nil
}

// Records returns a copy of the stored records.
func (f *FakeRegistry) Records() []registry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.Record, len(f.records))
	for i, r := range f.records {
		out[i] = clone(r)
	}
	return out
}

// Calls returns how many reads were attempted.
func (f *FakeRegistry) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Transactions returns how many transactions were attempted.
func (f *FakeRegistry) Transactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs
}

// LastValue returns the value sent with the most recent transaction.
func (f *FakeRegistry) LastValue() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return nil
	}
	return f.values[len(f.values)-1]
}

func (f *FakeRegistry) method(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, errors.New("fake registry: calldata too short")
	}
	return f.abi.MethodById(data[:4])
}

func clone(r registry.Record) registry.Record {
	if r.Available == nil {
		r.Available = new(big.Int)
	} else {
		r.Available = new(big.Int).Set(r.Available)
	}
	if r.Total == nil {
		r.Total = new(big.Int)
	} else {
		r.Total = new(big.Int).Set(r.Total)
	}
	return r
}

// FakeDeployer records deployments and hands out a fixed address.
type FakeDeployer struct {
	Address  common.Address
	Bytecode []byte
	Err      error
}

// Deploy records the bytecode and returns Address.
func (d *FakeDeployer) Deploy(_ context.Context, _ abi.ABI, bytecode []byte, _ ...interface{}) (*chain.TxResult, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.Bytecode = bytecode
	return &chain.TxResult{BlockNumber: 1, ContractAddress: d.Address}, nil
}
