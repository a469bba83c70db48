package exchange

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// fakeBackend 按方法选择器返回预置的 ABI 编码结果
type fakeBackend struct {
	mu       sync.Mutex
	outputs  map[string][]byte
	callErr  error
	sent     []*types.Transaction
	status   uint64
	receipts int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{outputs: map[string][]byte{}, status: types.ReceiptStatusSuccessful}
}

func (f *fakeBackend) setOutput(t *testing.T, method string, values ...any) {
	t.Helper()
	out, err := ABI().Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.outputs[string(ABI().Methods[method].ID)] = out
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.outputs[string(msg.Data[:4])], nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts++
	// 第一次查询模拟交易尚未上链
	if f.receipts == 1 {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: f.status}, nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), Time: 1_700_000_000}, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return 1, nil
}

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestClientReads(t *testing.T) {
	backend := newFakeBackend()
	backend.setOutput(t, "markPrice", big.NewInt(1000))
	backend.setOutput(t, "bestBuyId", big.NewInt(5))
	backend.setOutput(t, "initialMarginBps", uint16(100))

	trader := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	backend.setOutput(t, "orders",
		big.NewInt(5), trader, true, big.NewInt(100), big.NewInt(2), big.NewInt(3), big.NewInt(1_700_000_000), big.NewInt(3))

	c := NewClient(backend, contractAddr, Options{})
	ctx := context.Background()

	mark, err := c.MarkPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), mark.Int64())

	head, err := c.BestBuyID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), head)

	bps, err := c.InitialMarginBps(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), bps)

	o, err := c.Order(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), o.ID)
	assert.Equal(t, trader, o.Trader)
	assert.True(t, o.IsBuy)
	assert.Equal(t, uint64(3), o.Next)
	assert.Equal(t, int64(1), o.Filled().Int64())
	assert.True(t, o.Live())
}

func TestClientReadFailureIsTransient(t *testing.T) {
	backend := newFakeBackend()
	backend.callErr = errors.New("connection refused")

	c := NewClient(backend, contractAddr, Options{ReadTimeout: time.Second})
	_, err := c.IndexPrice(context.Background())
	assert.ErrorIs(t, err, ErrRead)
}

func TestDecodeOrderRejectsOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	out, err := ABI().Methods["orders"].Outputs.Pack(
		big.NewInt(1), common.Address{}, false, big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1), huge)
	require.NoError(t, err)

	_, err = decodeOrder(out)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = decodeOrder([]byte{0x01})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTransactWithoutSigner(t *testing.T) {
	c := NewClient(newFakeBackend(), contractAddr, Options{})
	_, err := c.SettleFunding(context.Background())
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestTransactWaitsForReceipt(t *testing.T) {
	signer, err := NewSigner("0x"+testKey, 31337)
	require.NoError(t, err)

	backend := newFakeBackend()
	c := NewClient(backend, contractAddr, Options{Signer: signer, ReceiptPoll: 10 * time.Millisecond})

	receipt, err := c.UpdateIndexPrice(context.Background(), big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, backend.sent[0].Hash(), receipt.TxHash)
	assert.Equal(t, uint64(7), backend.sent[0].Nonce())
	assert.Equal(t, contractAddr, *backend.sent[0].To())
}

func TestTransactFailedReceipt(t *testing.T) {
	signer, err := NewSigner(testKey, 31337)
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.status = types.ReceiptStatusFailed
	c := NewClient(backend, contractAddr, Options{Signer: signer, ReceiptPoll: 10 * time.Millisecond})

	_, err = c.SettleFunding(context.Background())
	assert.ErrorIs(t, err, ErrTransactionFailed)
}
