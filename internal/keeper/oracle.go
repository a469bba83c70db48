package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-perp-core/pkg/fixedpoint"
)

// ErrBadOracleResponse 预言机响应缺少价格字段或格式不对
var ErrBadOracleResponse = errors.New("bad oracle response")

// Oracle 返回 18 位精度的价格
type Oracle interface {
	Price(ctx context.Context, feedID string) (*big.Int, error)
}

// PythOracle Pyth Hermes HTTP 接口
type PythOracle struct {
	endpoint string
	client   *http.Client
}

func NewPythOracle(endpoint string, timeout time.Duration) *PythOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PythOracle{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Price GET /v2/updates/price/latest?ids[]=<feed>，取 parsed[0].price 的 price 和 expo，换算为 price*10^(18+expo)
func (o *PythOracle) Price(ctx context.Context, feedID string) (*big.Int, error) {
	u := o.endpoint + "/v2/updates/price/latest?" + url.Values{"ids[]": {feedID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pyth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("pyth read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadOracleResponse, resp.StatusCode, truncate(body, 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrBadOracleResponse)
	}

	price := gjson.GetBytes(body, "parsed.0.price.price")
	expo := gjson.GetBytes(body, "parsed.0.price.expo")
	if !price.Exists() || !expo.Exists() {
		return nil, fmt.Errorf("%w: no price for feed %s", ErrBadOracleResponse, feedID)
	}

	mantissa, ok := new(big.Int).SetString(price.String(), 10)
	if !ok {
		return nil, fmt.Errorf("%w: price %q", ErrBadOracleResponse, price.String())
	}
	e, err := cast.ToInt32E(expo.Value())
	if err != nil {
		return nil, fmt.Errorf("%w: expo %q: %v", ErrBadOracleResponse, expo.Raw, err)
	}

	return fixedpoint.ScaleExpo(mantissa, e), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
