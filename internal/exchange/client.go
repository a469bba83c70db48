package exchange

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend 客户端依赖的 RPC 能力，*ethclient.Client 满足该接口
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial 连接 RPC 节点
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return c, nil
}

// Options 客户端参数
type Options struct {
	ReadTimeout    time.Duration // 单次只读调用超时
	ReceiptTimeout time.Duration // 等待 receipt 的最长时间
	ReceiptPoll    time.Duration
	Signer         *Signer // 为空时写接口返回 ErrNoSigner
}

// Client 单个市场合约的读写客户端
type Client struct {
	backend Backend
	address common.Address
	opts    Options

	txMu sync.Mutex // 串行化同一 signer 的 nonce 分配
}

var (
	_ Reader = (*Client)(nil)
	_ Writer = (*Client)(nil)
)

func NewClient(backend Backend, address common.Address, opts Options) *Client {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = time.Second
	}
	return &Client{backend: backend, address: address, opts: opts}
}

// Address 合约地址
func (c *Client) Address() common.Address {
	return c.address
}

// Backend 底层 RPC，供日志拉取使用
func (c *Client) Backend() Backend {
	return c.backend
}

// call 执行只读调用并返回原始返回数据
func (c *Client) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, method, err)
	}
	return out, nil
}

func (c *Client) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := ABI().Unpack(method, out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrDecode, method, values[0])
	}
	return v, nil
}

func (c *Client) callUint64(ctx context.Context, method string) (uint64, error) {
	v, err := c.callBig(ctx, method)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows uint64: %s", ErrDecode, method, v)
	}
	return v.Uint64(), nil
}

func (c *Client) Margin(ctx context.Context, trader common.Address) (*big.Int, error) {
	return c.callBig(ctx, "margin", trader)
}

func (c *Client) MarkPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "markPrice")
}

func (c *Client) IndexPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "indexPrice")
}

func (c *Client) BestBuyID(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "bestBuyId")
}

func (c *Client) BestSellID(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "bestSellId")
}

func (c *Client) InitialMarginBps(ctx context.Context) (uint16, error) {
	out, err := c.call(ctx, "initialMarginBps")
	if err != nil {
		return 0, err
	}
	values, err := ABI().Unpack("initialMarginBps", out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("%w: initialMarginBps: %v", ErrDecode, err)
	}
	v, ok := values[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("%w: initialMarginBps returned %T", ErrDecode, values[0])
	}
	return v, nil
}

// Order 读取单个订单。未使用的 id 由合约返回全零结构，此处原样返回 ID 为 0 的 Order
func (c *Client) Order(ctx context.Context, id uint64) (Order, error) {
	out, err := c.call(ctx, "orders", new(big.Int).SetUint64(id))
	if err != nil {
		return Order{}, err
	}
	return decodeOrder(out)
}

func (c *Client) LastFundingTime(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "lastFundingTime")
}

func (c *Client) FundingInterval(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "fundingInterval")
}
