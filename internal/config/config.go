package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`

	Gamma    GammaConfig    `mapstructure:"gamma"`
	ClobREST ClobRESTConfig `mapstructure:"clob_rest"`
	DataAPI  DataAPIConfig  `mapstructure:"data_api"`
	ClobWS   ClobWSConfig   `mapstructure:"clob_ws"`
	Kalshi   KalshiConfig   `mapstructure:"kalshi"`
	OddsAPI  OddsAPIConfig  `mapstructure:"odds_api"`
	News     NewsConfig     `mapstructure:"news"`

	Scan        ScanConfig        `mapstructure:"scan"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Paper       PaperConfig       `mapstructure:"paper"`
	Spoof       SpoofConfig       `mapstructure:"spoof"`
	Parlay      ParlayConfig      `mapstructure:"parlay"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type GammaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ClobRESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DataAPIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ClobWSConfig struct {
	URL               string        `mapstructure:"url"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleThreshold    time.Duration `mapstructure:"stale_threshold"`
	MaxSubscriptions  int           `mapstructure:"max_subscriptions"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffFactor     float64       `mapstructure:"backoff_factor"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
}

type KalshiConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OddsAPIConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Regions   string        `mapstructure:"regions"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CachePath string        `mapstructure:"cache_path"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

type NewsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScanConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	TopN            int           `mapstructure:"top_n"`
	MaxMarkets      int           `mapstructure:"max_markets"`
	StrategyLimit   int           `mapstructure:"strategy_limit"`
	PersistenceTTL  time.Duration `mapstructure:"persistence_ttl"`
	PersistencePath string        `mapstructure:"persistence_path"`
}

type TradingConfig struct {
	FeeRate       float64 `mapstructure:"fee_rate"`
	SlippageBase  float64 `mapstructure:"slippage_base"`
	KellyFraction float64 `mapstructure:"kelly_fraction"`
	MaxExposure   float64 `mapstructure:"max_exposure"`
	MinScore      float64 `mapstructure:"min_score"`
}

type PaperConfig struct {
	StartBankroll   float64       `mapstructure:"start_bankroll"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	ResolutionCheck time.Duration `mapstructure:"resolution_check"`
	ResolveBatch    int           `mapstructure:"resolve_batch"`
	TradesPath      string        `mapstructure:"trades_path"`
	LearningPath    string        `mapstructure:"learning_path"`
	ResolutionsPath string        `mapstructure:"resolutions_path"`
}

type SpoofConfig struct {
	MinSize           float64       `mapstructure:"min_size"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"`
	MaxSnapshots      int           `mapstructure:"max_snapshots"`
}

type ParlayConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Bankroll        float64 `mapstructure:"bankroll"`
	MaxLegs         int     `mapstructure:"max_legs"`
	CachePath       string  `mapstructure:"cache_path"`
	LineHistoryPath string  `mapstructure:"line_history_path"`
	CLVPath         string  `mapstructure:"clv_path"`
	MaxAccas        int     `mapstructure:"max_accas"`
	LegReuse        int     `mapstructure:"leg_reuse"`
}

type CalibrationConfig struct {
	Path string `mapstructure:"path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.path", "data/edgescout.db")
	v.SetDefault("db.max_open_conns", 1)
	v.SetDefault("db.max_idle_conns", 1)
	v.SetDefault("db.conn_max_lifetime", "30m")

	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.timeout", "15s")
	v.SetDefault("clob_rest.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob_rest.timeout", "15s")
	v.SetDefault("data_api.base_url", "https://data-api.polymarket.com")

	v.SetDefault("clob_ws.url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("clob_ws.connect_timeout", "10s")
	v.SetDefault("clob_ws.heartbeat_interval", "30s")
	v.SetDefault("clob_ws.stale_threshold", "120s")
	v.SetDefault("clob_ws.max_subscriptions", 50)
	v.SetDefault("clob_ws.backoff_base", "3s")
	v.SetDefault("clob_ws.backoff_factor", 1.5)
	v.SetDefault("clob_ws.backoff_max", "30s")

	v.SetDefault("kalshi.enabled", false)
	v.SetDefault("kalshi.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("kalshi.timeout", "15s")

	v.SetDefault("odds_api.enabled", false)
	v.SetDefault("odds_api.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("odds_api.regions", "us,uk")
	v.SetDefault("odds_api.timeout", "20s")
	v.SetDefault("odds_api.cache_path", "data/odds-cache.json")
	v.SetDefault("odds_api.cache_ttl", "10m")
	v.SetDefault("odds_api.rate_limit", 1.0)

	v.SetDefault("news.enabled", false)
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.timeout", "15s")

	v.SetDefault("scan.interval", "60s")
	v.SetDefault("scan.top_n", 20)
	v.SetDefault("scan.max_markets", 200)
	v.SetDefault("scan.strategy_limit", 8)
	v.SetDefault("scan.persistence_ttl", "5m")
	v.SetDefault("scan.persistence_path", "data/signal-persistence.json")

	v.SetDefault("trading.fee_rate", 0.02)
	v.SetDefault("trading.slippage_base", 0.003)
	v.SetDefault("trading.kelly_fraction", 0.25)
	v.SetDefault("trading.max_exposure", 0.05)
	v.SetDefault("trading.min_score", 25)

	v.SetDefault("paper.start_bankroll", 1000)
	v.SetDefault("paper.dedup_window", "180s")
	v.SetDefault("paper.resolution_check", "60s")
	v.SetDefault("paper.resolve_batch", 15)
	v.SetDefault("paper.trades_path", "data/paper-trades.json")
	v.SetDefault("paper.learning_path", "data/learning-state.json")
	v.SetDefault("paper.resolutions_path", "data/edge-resolutions.json")

	v.SetDefault("spoof.min_size", 5000)
	v.SetDefault("spoof.snapshot_retention", "120s")
	v.SetDefault("spoof.max_snapshots", 10)

	v.SetDefault("parlay.enabled", false)
	v.SetDefault("parlay.bankroll", 1000)
	v.SetDefault("parlay.max_legs", 5)
	v.SetDefault("parlay.cache_path", "data/acca-cache.json")
	v.SetDefault("parlay.line_history_path", "data/line-history.json")
	v.SetDefault("parlay.clv_path", "data/acca-clv.json")
	v.SetDefault("parlay.max_accas", 10)
	v.SetDefault("parlay.leg_reuse", 3)

	v.SetDefault("calibration.path", "data/calibration.json")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
