package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// FundingSettler 资金费结算需要的合约接口，*exchange.Client 满足
type FundingSettler interface {
	LastFundingTime(ctx context.Context) (uint64, error)
	FundingInterval(ctx context.Context) (uint64, error)
	SettleFunding(ctx context.Context) (*types.Receipt, error)
}

// FundingKeeper 到期后调用 settleFunding
type FundingKeeper struct {
	*runner
	settler FundingSettler
	now     func() time.Time
}

func NewFundingKeeper(marketID string, settler FundingSettler, interval time.Duration) *FundingKeeper {
	if interval <= 0 {
		interval = time.Minute
	}
	k := &FundingKeeper{settler: settler, now: time.Now}
	k.runner = &runner{name: "funding", market: marketID, interval: interval, run: func(ctx context.Context) error {
		_, err := k.RunOnce(ctx)
		return err
	}}
	return k
}

// RunOnce 未到期时只记录剩余时间，返回 settled=false
func (k *FundingKeeper) RunOnce(ctx context.Context) (settled bool, err error) {
	last, err := k.settler.LastFundingTime(ctx)
	if err != nil {
		return false, fmt.Errorf("last funding time: %w", err)
	}
	interval, err := k.settler.FundingInterval(ctx)
	if err != nil {
		return false, fmt.Errorf("funding interval: %w", err)
	}

	now := uint64(k.now().Unix())
	if next := last + interval; now < next {
		logger.Info().
			Str("market", k.market).
			Dur("remaining", time.Duration(next-now)*time.Second).
			Msg("funding not due yet")
		return false, nil
	}

	receipt, err := k.settler.SettleFunding(ctx)
	if err != nil {
		status := "error"
		if errors.Is(err, exchange.ErrTransactionFailed) {
			status = "failed"
		}
		monitor.IncKeeperTx(k.name, k.market, status)
		return false, fmt.Errorf("settle funding: %w", err)
	}

	monitor.IncKeeperTx(k.name, k.market, "success")
	logger.Info().
		Str("market", k.market).
		Str("tx", receipt.TxHash.Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("funding settled")
	return true, nil
}
