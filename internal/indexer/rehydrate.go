package indexer

import (
	"fmt"

	"github.com/utrading/utrading-perp-core/internal/candle"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Rehydrate 从数据库恢复 LatestClose、当前时间桶的 K 线、仓位和未关闭订单
func (s *State) Rehydrate(markets []string, agg *candle.Aggregator) error {
	latest, err := dao.Candle().LatestCloses()
	if err != nil {
		return fmt.Errorf("load latest closes: %w", err)
	}

	wanted := make(map[string]struct{}, len(markets))
	for _, m := range markets {
		wanted[m] = struct{}{}
	}

	for _, lc := range latest {
		if _, ok := wanted[lc.MarketID]; !ok {
			continue
		}
		s.candles.PutLatestClose(candle.LatestClose{
			MarketID:  lc.MarketID,
			Price:     lc.Price.Big(),
			Timestamp: lc.Timestamp,
		})

		id := candle.CandleID(agg.Resolution(), agg.BucketStart(lc.Timestamp))
		c, err := dao.Candle().Get(lc.MarketID, id)
		if err != nil {
			return fmt.Errorf("load candle %s/%s: %w", lc.MarketID, id, err)
		}
		if c != nil {
			s.candles.PutCandle(candleFromModel(c))
		}
	}

	for _, m := range markets {
		positions, err := dao.Position().ListByMarket(m)
		if err != nil {
			return fmt.Errorf("load positions %s: %w", m, err)
		}
		for _, p := range positions {
			s.PutPosition(m, positionFromModel(p))
		}

		orders, err := dao.Order().Open(m)
		if err != nil {
			return fmt.Errorf("load open orders %s: %w", m, err)
		}
		for _, o := range orders {
			s.PutOrder(*o)
		}

		logger.Info().
			Str("market", m).
			Int("positions", len(positions)).
			Int("open_orders", len(orders)).
			Msg("indexer state rehydrated")
	}

	return nil
}
