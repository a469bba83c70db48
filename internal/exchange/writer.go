package exchange

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Signer keeper 使用的签名账户
type Signer struct {
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewSigner 从 hex 私钥创建签名账户
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// From 签名地址
func (s *Signer) From() common.Address {
	return s.from
}

func (c *Client) Deposit(ctx context.Context, value *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, value, "deposit")
}

func (c *Client) Withdraw(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, nil, "withdraw", amount)
}

func (c *Client) PlaceOrder(ctx context.Context, isBuy bool, price, amount *big.Int, hintID uint64) (*types.Receipt, error) {
	return c.transact(ctx, nil, "placeOrder", isBuy, price, amount, new(big.Int).SetUint64(hintID))
}

func (c *Client) CancelOrder(ctx context.Context, id uint64) (*types.Receipt, error) {
	return c.transact(ctx, nil, "cancelOrder", new(big.Int).SetUint64(id))
}

func (c *Client) SettleFunding(ctx context.Context) (*types.Receipt, error) {
	return c.transact(ctx, nil, "settleFunding")
}

func (c *Client) UpdateIndexPrice(ctx context.Context, priceWei *big.Int) (*types.Receipt, error) {
	return c.transact(ctx, nil, "updateIndexPrice", priceWei)
}

// transact 签名、发送交易并等待 receipt。receipt 失败返回 ErrTransactionFailed，不重试
func (c *Client) transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	signer := c.opts.Signer
	if signer == nil {
		return nil, ErrNoSigner
	}

	data, err := ABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	tx, err := c.signTx(ctx, signer, value, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if err = c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("%s: send: %w", method, err)
	}

	logger.Debug().
		Str("method", method).
		Str("tx", tx.Hash().Hex()).
		Str("contract", c.address.Hex()).
		Msg("transaction sent")

	receipt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s tx %s", ErrTransactionFailed, method, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *Client) signTx(ctx context.Context, signer *Signer, value *big.Int, data []byte) (*types.Transaction, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, signer.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  signer.from,
		To:    &c.address,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	return types.SignTx(tx, types.LatestSignerForChainID(signer.chainID), signer.key)
}

// waitReceipt 轮询 receipt 直到上链或超时
func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Warn().Err(err).Str("tx", hash.Hex()).Msg("receipt query failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
