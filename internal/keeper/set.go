package keeper

import (
	"context"
	"strings"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Contract 单个市场合约上 keeper 需要的调用
type Contract interface {
	FundingSettler
	IndexPriceUpdater
}

// Set 一组 keeper，统一启停
type Set struct {
	keepers []Keeper
}

// NewSet cfg.Markets 为空时对所有有合约的市场生效。没有 Pyth feed 的市场不推送价格
func NewSet(cfg config.Keeper, markets []config.Market, contracts map[string]Contract, oracle Oracle) *Set {
	enabled := make(map[string]bool, len(cfg.Markets))
	for _, id := range cfg.Markets {
		enabled[strings.ToUpper(id)] = true
	}

	s := &Set{}
	for _, m := range markets {
		if len(enabled) > 0 && !enabled[strings.ToUpper(m.ID)] {
			continue
		}
		c, ok := contracts[m.ID]
		if !ok {
			logger.Warn().Str("market", m.ID).Msg("no contract client, keeper disabled")
			continue
		}

		s.keepers = append(s.keepers, NewFundingKeeper(m.ID, c, cfg.FundingCheckInterval))
		if m.PythFeedID != "" && oracle != nil {
			s.keepers = append(s.keepers, NewPriceKeeper(m.ID, m.PythFeedID, oracle, c, cfg.PricePushInterval))
		}
	}
	return s
}

func (s *Set) Len() int {
	return len(s.keepers)
}

func (s *Set) Start(ctx context.Context) {
	for _, k := range s.keepers {
		k.Start(ctx)
	}
}

func (s *Set) Stop() {
	for _, k := range s.keepers {
		k.Stop()
	}
}

// Status 实现 monitor.StatusProvider
func (s *Set) Status() map[string]any {
	out := make(map[string]any, len(s.keepers))
	for _, k := range s.keepers {
		st := k.Status()
		out[st["keeper"].(string)+":"+st["market"].(string)] = st
	}
	return out
}
