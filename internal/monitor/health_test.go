package monitor

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/models"
)

type fakePublisher struct{ connected bool }

func (f fakePublisher) IsConnected() bool { return f.connected }

type staticStatus map[string]any

func (s staticStatus) Status() map[string]any { return s }

type snapshots map[string]any

func (s snapshots) Snapshot(marketID string) (any, bool) {
	v, ok := s[marketID]
	return v, ok
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthServer(":0", fakePublisher{connected: false})
	h.AddStatus("indexer", staticStatus{"block": 42})

	assert.Equal(t, http.StatusOK, get(t, h.Router(), "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, h.Router(), "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h.Router(), "/health/ready").Code)

	rec := get(t, h.Router(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"block":42`)

	ready := NewHealthServer(":0", nil)
	assert.Equal(t, http.StatusOK, get(t, ready.Router(), "/health/ready").Code)
}

func TestQueryRoutes(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:monitor_query?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	dao.InitDAO(db)

	require.NoError(t, dao.Trade().BatchUpsert([]*models.Trade{{
		MarketID: "ETH-USD", EventID: "0xab-0", Buyer: "0xb", Seller: "0xs",
		Price: models.NewBigInt(big.NewInt(100)), Amount: models.NewBigInt(big.NewInt(1)), Timestamp: 1,
	}}))

	h := NewHealthServer(":0", nil)
	RegisterQueryRoutes(h.Router(), "1m", snapshots{"ETH-USD": map[string]string{"mark": "100"}})

	rec := get(t, h.Router(), "/markets/eth-usd/trades?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"0xab-0"`)
	assert.Contains(t, rec.Body.String(), `"price":"100"`)

	rec = get(t, h.Router(), "/markets/ETH-USD/trades/0xB")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xab-0")

	assert.Equal(t, http.StatusOK, get(t, h.Router(), "/markets/ETH-USD/snapshot").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h.Router(), "/markets/BTC-USD/snapshot").Code)
	assert.Equal(t, http.StatusOK, get(t, h.Router(), "/positions/0xb").Code)
}
