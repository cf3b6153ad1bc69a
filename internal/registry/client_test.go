package registry_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/registry"
	"github.com/R3E-Network/property_registry/pkg/logger"
	"github.com/R3E-Network/property_registry/pkg/testutil"
)

var registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func record(slug string, available, total int64) registry.Record {
	return registry.Record{
		Slug:      slug,
		Title:     slug,
		City:      "Austin",
		Available: big.NewInt(available),
		Total:     big.NewInt(total),
	}
}

func newClient(t *testing.T, fake *testutil.FakeRegistry, writable bool) *registry.Client {
	t.Helper()
	var writer registry.Transactor
	if writable {
		writer = fake
	}
	c, err := registry.New(registryAddr, fake, writer, logger.NewDiscard("registry"))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := registry.New(common.Address{}, testutil.NewFakeRegistry(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
}

func TestListProperties(t *testing.T) {
	fake := testutil.NewFakeRegistry(record("a", 1, 2), record("b", 3, 4))
	c := newClient(t, fake, false)

	got, err := c.ListProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Slug)
	assert.Equal(t, int64(3), got[1].Available.Int64())
	assert.Equal(t, 1, fake.Calls())
}

func TestListProperties_Empty(t *testing.T) {
	c := newClient(t, testutil.NewFakeRegistry(), false)
	got, err := c.ListProperties(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListProperties_TransportError(t *testing.T) {
	fake := testutil.NewFakeRegistry()
	fake.CallErr = errors.New("dial tcp 127.0.0.1:8545: connection refused")
	c := newClient(t, fake, false)

	_, err := c.ListProperties(context.Background())
	require.Error(t, err)
	assert.Equal(t, chain.KindTransport, chain.KindOf(err))
}

type staticCaller []byte

func (s staticCaller) Call(context.Context, common.Address, []byte) ([]byte, error) { return s, nil }

func TestListProperties_DecodeError(t *testing.T) {
	for name, out := range map[string][]byte{
		"no contract": nil,
		"garbage":     {0x01, 0x02, 0x03},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := registry.New(registryAddr, staticCaller(out), nil, logger.NewDiscard("registry"))
			require.NoError(t, err)
			_, err = c.ListProperties(context.Background())
			require.Error(t, err)
			assert.Equal(t, chain.KindDecode, chain.KindOf(err))
		})
	}
}

func TestUpsert_IndexSemantics(t *testing.T) {
	ctx := context.Background()

	fake := testutil.NewFakeRegistry(record("a", 1, 1), record("b", 1, 1), record("c", 1, 1))
	c := newClient(t, fake, true)
	_, err := c.Upsert(ctx, record("d", 1, 1), big.NewInt(9999))
	require.NoError(t, err)
	recs := fake.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, "d", recs[3].Slug)

	fake = testutil.NewFakeRegistry(record("a", 1, 1), record("b", 1, 1), record("c", 1, 1))
	c = newClient(t, fake, true)
	_, err = c.Upsert(ctx, record("z", 1, 1), big.NewInt(1))
	require.NoError(t, err)
	recs = fake.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "z", "c"}, slugs(recs))
}

func TestReplaceAt(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("a", 1, 1), record("b", 1, 1))
	c := newClient(t, fake, true)

	res, err := c.ReplaceAt(ctx, 1, record("b", 0, 1))
	require.NoError(t, err)
	assert.False(t, res.Appended)
	assert.Equal(t, uint64(1), res.Index)
	assert.Equal(t, int64(0), fake.Records()[1].Available.Int64())

	_, err = c.ReplaceAt(ctx, 2, record("c", 1, 1))
	require.Error(t, err)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))

	_, err = c.ReplaceAt(ctx, 0, record("b", 1, 1))
	require.Error(t, err, "slug b lives at index 1")
	assert.Len(t, fake.Records(), 2)
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("a", 1, 1))
	c := newClient(t, fake, true)

	res, err := c.Append(ctx, record("b", 1, 1))
	require.NoError(t, err)
	assert.True(t, res.Appended)
	assert.Equal(t, uint64(1), res.Index)

	_, err = c.Append(ctx, record("a", 1, 1))
	require.Error(t, err)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))
	assert.Equal(t, 1, fake.Transactions())
}

func TestUpsertBySlug(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("a", 1, 1), record("b", 1, 1))
	c := newClient(t, fake, true)

	res, err := c.UpsertBySlug(ctx, record("b", 5, 9))
	require.NoError(t, err)
	assert.False(t, res.Appended)
	assert.Equal(t, uint64(1), res.Index)

	res, err = c.UpsertBySlug(ctx, record("c", 1, 1))
	require.NoError(t, err)
	assert.True(t, res.Appended)

	assert.Equal(t, []string{"a", "b", "c"}, slugs(fake.Records()))
	assert.Equal(t, int64(9), fake.Records()[1].Total.Int64())
}

func TestUpsertBySlug_ConcurrentAppendsStayUnique(t *testing.T) {
	fake := testutil.NewFakeRegistry()
	c := newClient(t, fake, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.UpsertBySlug(context.Background(), record("same", 1, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, fake.Records(), 1)
}

func TestSetProperties(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("old", 1, 1))
	c := newClient(t, fake, true)

	_, err := c.SetProperties(ctx, []registry.Record{record("x", 1, 2), record("y", 3, 4)})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, slugs(fake.Records()))

	_, err = c.SetProperties(ctx, []registry.Record{record("x", 1, 2), record("x", 1, 2)})
	require.Error(t, err)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))
}

func TestInvest(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("a", 2, 10))
	c := newClient(t, fake, true)

	_, err := c.Invest(ctx, "a", 5, nil)
	require.Error(t, err)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))
	assert.Equal(t, "quantity 5 exceeds available 2", chain.MessageOf(err))
	assert.Equal(t, 0, fake.Transactions())

	_, err = c.Invest(ctx, "missing", 1, nil)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))

	_, err = c.Invest(ctx, "a", 0, nil)
	assert.Equal(t, chain.KindInvalid, chain.KindOf(err))

	value := big.NewInt(1e15)
	_, err = c.Invest(ctx, "a", 2, value)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fake.Records()[0].Available.Int64())
	assert.Equal(t, value, fake.LastValue())
}

func TestWrites_RequireKey(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRegistry(record("a", 1, 1))
	c := newClient(t, fake, false)

	_, err := c.Append(ctx, record("b", 1, 1))
	require.Error(t, err)
	assert.Equal(t, chain.KindConfig, chain.KindOf(err))
	assert.Contains(t, err.Error(), "PRIVATE_KEY")
	assert.Equal(t, 0, fake.Calls())
}

func TestWrites_RevertIsClassified(t *testing.T) {
	fake := testutil.NewFakeRegistry()
	fake.TxErr = errors.New("execution reverted: not owner")
	c := newClient(t, fake, true)

	_, err := c.Append(context.Background(), record("a", 1, 1))
	require.Error(t, err)
	assert.Equal(t, chain.KindRevert, chain.KindOf(err))
	assert.Equal(t, 1, fake.Transactions(), "writes are not retried")
}

func slugs(recs []registry.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Slug
	}
	return out
}
