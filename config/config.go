package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Exchange 链上交易所合约访问配置
type Exchange struct {
	RPCURL         string        `toml:"rpc_url"`
	ChainID        int64         `toml:"chain_id"`
	KeeperKeyEnv   string        `toml:"keeper_key_env"` // 私钥所在环境变量名，私钥本身不写入配置文件
	ReadTimeout    time.Duration `toml:"read_timeout"`
	ReceiptTimeout time.Duration `toml:"receipt_timeout"`
	ReceiptPoll    time.Duration `toml:"receipt_poll"`
}

// Market 单个市场，每个市场对应一个独立的交易所合约
type Market struct {
	ID          string `toml:"id"`
	Symbol      string `toml:"symbol"`
	Base        string `toml:"base"`
	Quote       string `toml:"quote"`
	Decimals    int32  `toml:"decimals"` // 展示精度
	Address     string `toml:"address"`
	DeployBlock uint64 `toml:"deploy_block"`
	PythFeedID  string `toml:"pyth_feed_id"`
}

type Indexer struct {
	PollInterval  time.Duration `toml:"poll_interval"`
	BlockWindow   uint64        `toml:"block_window"`
	Confirmations uint64        `toml:"confirmations"`
	QueueSize     int           `toml:"queue_size"`
	DedupTTL      time.Duration `toml:"dedup_ttl"`
	Resolution    string        `toml:"resolution"`
}

type Monitor struct {
	HealthServerAddr       string        `toml:"health_server_addr"`
	RefreshInterval        time.Duration `toml:"refresh_interval"`
	ScanLimit              uint64        `toml:"scan_limit"`
	MaintenanceMarginRatio string        `toml:"maintenance_margin_ratio"`
	Traders                []string      `toml:"traders"`
	ReadWorkers            int           `toml:"read_workers"`
	TraderReloadInterval   time.Duration `toml:"trader_reload_interval"` // 从仓位表同步关注交易者，0 表示只看 Traders
	TraderRemoveGrace      time.Duration `toml:"trader_remove_grace"`
}

type Keeper struct {
	FundingCheckInterval time.Duration `toml:"funding_check_interval"`
	PricePushInterval    time.Duration `toml:"price_push_interval"`
	PythEndpoint         string        `toml:"pyth_endpoint"`
	Markets              []string      `toml:"markets"` // 为空时对全部市场生效
}

type MySQL struct {
	Driver             string   `toml:"driver"` // mysql | sqlite
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint      string `toml:"endpoint"`
	SubjectPrefix string `toml:"subject_prefix"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Cleaner struct {
	Interval          time.Duration `toml:"interval"`
	MarginEventMaxAge time.Duration `toml:"margin_event_max_age"`
	ClosedOrderMaxAge time.Duration `toml:"closed_order_max_age"`
	CandleMaxAge      time.Duration `toml:"candle_max_age"`
}

type Config struct {
	Exchange Exchange `toml:"exchange"`
	Markets  []Market `toml:"markets"`
	Indexer  Indexer  `toml:"indexer"`
	Monitor  Monitor  `toml:"monitor"`
	Keeper   Keeper   `toml:"keeper"`
	MySQL    MySQL    `toml:"mysql"`
	NATS     NATS     `toml:"nats"`
	Logger   Logger   `toml:"log"`
	Cleaner  Cleaner  `toml:"cleaner"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

// DefaultMarkets 默认上线的三个市场，合约地址需在配置文件中填写
func DefaultMarkets() []Market {
	return []Market{
		{ID: "ETH-USD", Symbol: "ETH/USD", Base: "ETH", Quote: "USD", Decimals: 2,
			PythFeedID: "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"},
		{ID: "SOL-USD", Symbol: "SOL/USD", Base: "SOL", Quote: "USD", Decimals: 4,
			PythFeedID: "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"},
		{ID: "BTC-USD", Symbol: "BTC/USD", Base: "BTC", Quote: "USD", Decimals: 2,
			PythFeedID: "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"},
	}
}

func Default() *Config {
	return &Config{
		Exchange: Exchange{
			RPCURL:         "http://127.0.0.1:8545",
			ChainID:        31337,
			KeeperKeyEnv:   "PERP_KEEPER_KEY",
			ReadTimeout:    5 * time.Second,
			ReceiptTimeout: 2 * time.Minute,
			ReceiptPoll:    time.Second,
		},
		Markets: DefaultMarkets(),
		Indexer: Indexer{
			PollInterval:  2 * time.Second,
			BlockWindow:   2000,
			Confirmations: 0,
			QueueSize:     10000,
			DedupTTL:      30 * time.Minute,
			Resolution:    "1m",
		},
		Monitor: Monitor{
			HealthServerAddr:       "0.0.0.0:16810",
			RefreshInterval:        4 * time.Second,
			ScanLimit:              20,
			MaintenanceMarginRatio: "0.005",
			ReadWorkers:            16,
			TraderReloadInterval:   time.Minute,
			TraderRemoveGrace:      10 * time.Minute,
		},
		Keeper: Keeper{
			FundingCheckInterval: time.Minute,
			PricePushInterval:    5 * time.Second,
			PythEndpoint:         "https://hermes.pyth.network",
		},
		MySQL: MySQL{
			Driver:             "mysql",
			DSN:                "root:password@tcp(localhost:3306)/perp?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint:      "nats://localhost:4222",
			SubjectPrefix: "perp",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
		},
		Cleaner: Cleaner{
			Interval:          time.Hour,
			MarginEventMaxAge: 90 * 24 * time.Hour,
			ClosedOrderMaxAge: 7 * 24 * time.Hour,
			CandleMaxAge:      0, // 0 表示 K 线永久保留
		},
	}
}

// Market 按 id 查找市场
func (c *Config) Market(id string) (Market, bool) {
	for _, m := range c.Markets {
		if strings.EqualFold(m.ID, id) {
			return m, true
		}
	}
	return Market{}, false
}

// MMR 维持保证金率，配置非法时回退到 0.005
func (m Monitor) MMR() float64 {
	v, err := cast.ToFloat64E(m.MaintenanceMarginRatio)
	if err != nil || v <= 0 || v >= 1 {
		return 0.005
	}
	return v
}

func Load(path string) error {
	c := Default()
	// [[markets]] 整体替换默认市场，不与默认值逐项合并
	c.Markets = nil
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}
	if len(c.Markets) == 0 {
		c.Markets = DefaultMarkets()
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 加载配置并每 10 秒检查一次文件变更
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

func Stop() {
	if stopChan != nil {
		close(stopChan)
		stopChan = nil
	}
}

func reloadIfNeeded() {
	cfgLock.RLock()
	path, lastMod := cfgPath, lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}
	if !info.ModTime().After(lastMod) {
		return
	}

	if err = Load(path); err != nil {
		logger.Error().Err(err).Msg("config reload failed")
		return
	}
	logger.Info().Str("path", path).Msg("config reloaded")
}
