package monitor

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-perp-core/internal/dao"
)

// SnapshotSource 按市场返回最近一次刷新的快照
type SnapshotSource interface {
	Snapshot(marketID string) (any, bool)
}

const maxQueryLimit = 500

// RegisterQueryRoutes 挂载索引数据和行情快照的只读查询，snapshots 可为 nil
func RegisterQueryRoutes(r *mux.Router, resolution string, snapshots SnapshotSource) {
	q := &queryHandler{resolution: resolution, snapshots: snapshots}

	m := r.PathPrefix("/markets/{market}").Subrouter()
	m.HandleFunc("/snapshot", q.snapshot).Methods(http.MethodGet)
	m.HandleFunc("/candles", q.candles).Methods(http.MethodGet)
	m.HandleFunc("/trades", q.trades).Methods(http.MethodGet)
	m.HandleFunc("/trades/{trader}", q.traderTrades).Methods(http.MethodGet)
	m.HandleFunc("/orders/{trader}", q.openOrders).Methods(http.MethodGet)
	m.HandleFunc("/funding", q.funding).Methods(http.MethodGet)
	m.HandleFunc("/liquidations", q.liquidations).Methods(http.MethodGet)

	r.HandleFunc("/positions/{trader}", q.positions).Methods(http.MethodGet)
}

type queryHandler struct {
	resolution string
	snapshots  SnapshotSource
}

func market(r *http.Request) string {
	return strings.ToUpper(mux.Vars(r)["market"])
}

func trader(r *http.Request) string {
	return strings.ToLower(mux.Vars(r)["trader"])
}

// limit 取 ?limit=，非法或越界时使用默认值
func limit(r *http.Request, def int) int {
	n := cast.ToInt(r.URL.Query().Get("limit"))
	if n <= 0 || n > maxQueryLimit {
		return def
	}
	return n
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (q *queryHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	if q.snapshots == nil {
		http.Error(w, "snapshots not served by this process", http.StatusNotFound)
		return
	}
	snap, ok := q.snapshots.Snapshot(market(r))
	if !ok {
		http.Error(w, "no snapshot for market", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (q *queryHandler) candles(w http.ResponseWriter, r *http.Request) {
	res := r.URL.Query().Get("resolution")
	if res == "" {
		res = q.resolution
	}
	v, err := dao.Candle().Latest(market(r), res, limit(r, dao.CandlesLimit))
	respond(w, v, err)
}

func (q *queryHandler) trades(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Trade().Recent(market(r), limit(r, dao.RecentTradesLimit))
	respond(w, v, err)
}

func (q *queryHandler) traderTrades(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Trade().ByTrader(market(r), trader(r), limit(r, dao.RecentTradesLimit))
	respond(w, v, err)
}

func (q *queryHandler) openOrders(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Order().OpenByTrader(market(r), trader(r))
	respond(w, v, err)
}

func (q *queryHandler) funding(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Event().RecentFunding(market(r), limit(r, 20))
	respond(w, v, err)
}

func (q *queryHandler) liquidations(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Event().RecentLiquidations(market(r), limit(r, 20))
	respond(w, v, err)
}

func (q *queryHandler) positions(w http.ResponseWriter, r *http.Request) {
	v, err := dao.Position().ByTrader(trader(r))
	respond(w, v, err)
}
