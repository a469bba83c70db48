package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// IndexPriceUpdater *exchange.Client 满足
type IndexPriceUpdater interface {
	UpdateIndexPrice(ctx context.Context, priceWei *big.Int) (*types.Receipt, error)
}

// PriceKeeper 把预言机价格推送为合约的指数价格
type PriceKeeper struct {
	*runner
	feedID  string
	oracle  Oracle
	updater IndexPriceUpdater
}

func NewPriceKeeper(marketID, feedID string, oracle Oracle, updater IndexPriceUpdater, interval time.Duration) *PriceKeeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	k := &PriceKeeper{feedID: feedID, oracle: oracle, updater: updater}
	k.runner = &runner{name: "price", market: marketID, interval: interval, run: func(ctx context.Context) error {
		_, err := k.RunOnce(ctx)
		return err
	}}
	return k
}

// RunOnce 返回本次提交的价格（wei）
func (k *PriceKeeper) RunOnce(ctx context.Context) (*big.Int, error) {
	price, err := k.oracle.Price(ctx, k.feedID)
	if err != nil {
		return nil, fmt.Errorf("oracle price: %w", err)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price %s", ErrBadOracleResponse, price)
	}

	receipt, err := k.updater.UpdateIndexPrice(ctx, price)
	if err != nil {
		status := "error"
		if errors.Is(err, exchange.ErrTransactionFailed) {
			status = "failed"
		}
		monitor.IncKeeperTx(k.name, k.market, status)
		return nil, fmt.Errorf("update index price: %w", err)
	}

	monitor.IncKeeperTx(k.name, k.market, "success")
	logger.Info().
		Str("market", k.market).
		Str("price", fixedpoint.Format(price, 4)).
		Str("tx", receipt.TxHash.Hex()).
		Msg("index price updated")
	return price, nil
}
