package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/metrics"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Caller executes read-only contract calls.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Transactor signs, sends and waits for contract transactions.
type Transactor interface {
	Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*chain.TxResult, error)
}

// AppendIndex returns the index that makes upsert append: 2^256-1.
func AppendIndex() *big.Int { return new(big.Int).Set(math.MaxBig256) }

// WriteResult describes a completed registry write.
type WriteResult struct {
	Tx       *chain.TxResult
	Index    uint64
	Appended bool
}

// Client talks to one deployed registry. It holds no connection state of its
// own; the Caller and Transactor own transport.
type Client struct {
	address common.Address
	abi     abi.ABI
	caller  Caller
	writer  Transactor
	log     *logger.Logger
}

// New creates a registry client. writer may be nil for read-only use.
func New(address common.Address, caller Caller, writer Transactor, log *logger.Logger) (*Client, error) {
	if address == (common.Address{}) {
		return nil, chain.ConfigError("registry address is not configured")
	}
	if caller == nil {
		return nil, chain.ConfigError("registry client requires a chain caller")
	}
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Client{
		address: address,
		abi:     contractABI,
		caller:  caller,
		writer:  writer,
		log:     log,
	}, nil
}

// Address returns the registry contract address.
func (c *Client) Address() common.Address { return c.address }

// ListProperties returns every raw record in contract order.
func (c *Client) ListProperties(ctx context.Context) ([]Record, error) {
	data, err := c.abi.Pack(MethodListProperties)
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, MethodListProperties, "pack call", err)
	}
	out, err := c.caller.Call(ctx, c.address, data)
	if err != nil {
		return nil, chain.Classify(MethodListProperties, err)
	}
	if len(out) == 0 {
		return nil, chain.DecodeError(MethodListProperties, fmt.Errorf("empty result: no registry deployed at %s", c.address.Hex()))
	}

	var records []Record
	if err := c.abi.UnpackIntoInterface(&records, MethodListProperties, out); err != nil {
		return nil, chain.DecodeError(MethodListProperties, err)
	}
	return records, nil
}

// Upsert sends a raw upsert. An index within bounds replaces that slot and
// anything else appends. Most callers want UpsertBySlug, ReplaceAt or Append.
func (c *Client) Upsert(ctx context.Context, rec Record, index *big.Int) (*chain.TxResult, error) {
	if err := c.requireWriter(MethodUpsert); err != nil {
		return nil, err
	}
	if err := validateRecord(MethodUpsert, rec); err != nil {
		return nil, err
	}
	if index == nil {
		index = AppendIndex()
	}
	data, err := c.abi.Pack(MethodUpsert, normalize(rec), index)
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, MethodUpsert, "pack call", err)
	}
	res, err := c.writer.Transact(ctx, c.address, data, nil)
	metrics.RecordWrite(MethodUpsert, err)
	if err != nil {
		return nil, chain.Classify(MethodUpsert, err)
	}
	return res, nil
}

// ReplaceAt overwrites the record at index. The index must exist and the
// slug may not collide with another record.
func (c *Client) ReplaceAt(ctx context.Context, index uint64, rec Record) (*WriteResult, error) {
	const op = "replaceAt"
	if err := c.requireWriter(op); err != nil {
		return nil, err
	}

	unlock := lockWrites(c.address)
	defer unlock()

	current, err := c.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(current)) {
		return nil, chain.InvalidError(op, "index %d out of bounds: registry holds %d records", index, len(current))
	}
	if at, ok := indexOfSlug(current, rec.Slug); ok && uint64(at) != index {
		return nil, chain.InvalidError(op, "slug %q already stored at index %d", rec.Slug, at)
	}

	res, err := c.Upsert(ctx, rec, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	c.log.WithFields(map[string]interface{}{"slug": rec.Slug, "index": index, "tx": res.TxHash.Hex()}).Info("registry record replaced")
	return &WriteResult{Tx: res, Index: index}, nil
}

// Append adds a record at the end of the registry. Slugs are unique.
func (c *Client) Append(ctx context.Context, rec Record) (*WriteResult, error) {
	const op = "append"
	if err := c.requireWriter(op); err != nil {
		return nil, err
	}

	unlock := lockWrites(c.address)
	defer unlock()

	current, err := c.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	if at, ok := indexOfSlug(current, rec.Slug); ok {
		return nil, chain.InvalidError(op, "slug %q already stored at index %d", rec.Slug, at)
	}
	return c.appendLocked(ctx, rec, uint64(len(current)))
}

// UpsertBySlug replaces the record with the same slug or appends it.
func (c *Client) UpsertBySlug(ctx context.Context, rec Record) (*WriteResult, error) {
	const op = "upsertBySlug"
	if err := c.requireWriter(op); err != nil {
		return nil, err
	}

	unlock := lockWrites(c.address)
	defer unlock()

	current, err := c.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	at, ok := indexOfSlug(current, rec.Slug)
	if !ok {
		return c.appendLocked(ctx, rec, uint64(len(current)))
	}

	res, err := c.Upsert(ctx, rec, big.NewInt(int64(at)))
	if err != nil {
		return nil, err
	}
	c.log.WithFields(map[string]interface{}{"slug": rec.Slug, "index": at, "tx": res.TxHash.Hex()}).Info("registry record replaced")
	return &WriteResult{Tx: res, Index: uint64(at)}, nil
}

// SetProperties replaces the whole registry with records, in order.
func (c *Client) SetProperties(ctx context.Context, records []Record) (*chain.TxResult, error) {
	if err := c.requireWriter(MethodSetProperties); err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(records))
	batch := make([]Record, 0, len(records))
	for i, rec := range records {
		if err := validateRecord(MethodSetProperties, rec); err != nil {
			return nil, err
		}
		if prev, dup := seen[rec.Slug]; dup {
			return nil, chain.InvalidError(MethodSetProperties, "slug %q appears at positions %d and %d", rec.Slug, prev, i)
		}
		seen[rec.Slug] = i
		batch = append(batch, normalize(rec))
	}

	data, err := c.abi.Pack(MethodSetProperties, batch)
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, MethodSetProperties, "pack call", err)
	}

	unlock := lockWrites(c.address)
	defer unlock()

	res, err := c.writer.Transact(ctx, c.address, data, nil)
	metrics.RecordWrite(MethodSetProperties, err)
	if err != nil {
		return nil, chain.Classify(MethodSetProperties, err)
	}
	c.log.WithFields(map[string]interface{}{"count": len(batch), "tx": res.TxHash.Hex()}).Info("registry replaced")
	return res, nil
}

// Invest buys quantity tokens of the property with slug, sending value wei.
// Unknown slugs, zero quantities and oversized orders are rejected before
// anything is signed.
func (c *Client) Invest(ctx context.Context, slug string, quantity uint64, value *big.Int) (*chain.TxResult, error) {
	if err := c.requireWriter(MethodInvest); err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, chain.InvalidError(MethodInvest, "quantity must be positive")
	}

	unlock := lockWrites(c.address)
	defer unlock()

	current, err := c.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	at, ok := indexOfSlug(current, slug)
	if !ok {
		return nil, chain.InvalidError(MethodInvest, "unknown property %q", slug)
	}
	available := current[at].Available
	if available == nil || available.Cmp(new(big.Int).SetUint64(quantity)) < 0 {
		return nil, chain.InvalidError(MethodInvest, "quantity %d exceeds available %s", quantity, bigString(available))
	}

	data, err := c.abi.Pack(MethodInvest, slug, new(big.Int).SetUint64(quantity))
	if err != nil {
		return nil, chain.NewError(chain.KindInvalid, MethodInvest, "pack call", err)
	}
	res, err := c.writer.Transact(ctx, c.address, data, value)
	metrics.RecordWrite(MethodInvest, err)
	if err != nil {
		return nil, chain.Classify(MethodInvest, err)
	}
	c.log.WithFields(map[string]interface{}{"slug": slug, "quantity": quantity, "tx": res.TxHash.Hex()}).Info("investment recorded")
	return res, nil
}

func (c *Client) appendLocked(ctx context.Context, rec Record, index uint64) (*WriteResult, error) {
	res, err := c.Upsert(ctx, rec, AppendIndex())
	if err != nil {
		return nil, err
	}
	c.log.WithFields(map[string]interface{}{"slug": rec.Slug, "index": index, "tx": res.TxHash.Hex()}).Info("registry record appended")
	return &WriteResult{Tx: res, Index: index, Appended: true}, nil
}

func (c *Client) requireWriter(op string) error {
	if c.writer == nil {
		err := chain.ConfigError("PRIVATE_KEY is required for write operations")
		err.Op = op
		return err
	}
	return nil
}

func validateRecord(op string, rec Record) error {
	if rec.Slug == "" {
		return chain.InvalidError(op, "record slug is required")
	}
	if rec.Status > StatusCodeSoldOut {
		return chain.InvalidError(op, "record %s: unknown status code %d", rec.Slug, rec.Status)
	}
	if (rec.Available != nil && rec.Available.Sign() < 0) || (rec.Total != nil && rec.Total.Sign() < 0) {
		return chain.InvalidError(op, "record %s: negative quantity", rec.Slug)
	}
	if rec.Available != nil && rec.Total != nil && rec.Total.Sign() > 0 && rec.Available.Cmp(rec.Total) > 0 {
		return chain.InvalidError(op, "record %s: available %s exceeds total %s", rec.Slug, rec.Available, rec.Total)
	}
	return nil
}

// normalize replaces nil quantities so the record packs.
func normalize(rec Record) Record {
	if rec.Available == nil {
		rec.Available = new(big.Int)
	}
	if rec.Total == nil {
		rec.Total = new(big.Int)
	}
	return rec
}

func indexOfSlug(records []Record, slug string) (int, bool) {
	for i, r := range records {
		if r.Slug == slug {
			return i, true
		}
	}
	return -1, false
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// writeLocks serializes read-modify-write sequences per registry address.
var writeLocks sync.Map

func lockWrites(addr common.Address) func() {
	mu, _ := writeLocks.LoadOrStore(addr, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
