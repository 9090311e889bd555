package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Venue      string           `yaml:"venue"`
	Symbols    []string         `yaml:"symbols"`
	Binance    BinanceConfig    `yaml:"binance"`
	Detector   DetectorConfig   `yaml:"detector"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Population PopulationConfig `yaml:"population"`
	Report     ReportConfig     `yaml:"report"`
	Export     ExportConfig     `yaml:"export"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

type BinanceConfig struct {
	APIKey    string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// DetectorConfig 拉盘检测阈值
type DetectorConfig struct {
	PriceIncrease1m           float64       `yaml:"price_increase_1m"`
	PriceIncrease5m           float64       `yaml:"price_increase_5m"`
	VolumeSpikeMultiplier     float64       `yaml:"volume_spike_multiplier"`
	MinVolumeUSDT             float64       `yaml:"min_volume_usdt"`
	RSIOverbought             float64       `yaml:"rsi_overbought"`
	MomentumThreshold         float64       `yaml:"momentum_threshold"`
	MinConfidence             float64       `yaml:"min_confidence"`
	RecentPumpPriceThreshold  float64       `yaml:"recent_pump_price_threshold"`
	RecentPumpVolumeThreshold float64       `yaml:"recent_pump_volume_threshold"`
	LookbackCandles           int           `yaml:"lookback_candles"`
	Cooldown                  time.Duration `yaml:"cooldown"`
	BufferCapacity            int           `yaml:"buffer_capacity"`
}

type DispatcherConfig struct {
	CandleQueueCapacity int `yaml:"candle_queue_capacity"`
	SignalQueueCapacity int `yaml:"signal_queue_capacity"`
	BatchSize           int `yaml:"batch_size"`
	CleanupEvery        int `yaml:"cleanup_every"`
	BufferCapacity      int `yaml:"buffer_capacity"`
	TradeHistoryCap     int `yaml:"trade_history_cap"`
}

type PopulationConfig struct {
	MaxStrategies    int     `yaml:"max_strategies"`
	Seed             int64   `yaml:"seed"`
	PositionSizeUSDT float64 `yaml:"position_size_usdt"`
	EntryFillCandles int     `yaml:"entry_fill_candles"`
	Grid             Grid    `yaml:"grid"`
}

type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
	TopN     int           `yaml:"top_n"`
}

type ExportConfig struct {
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func DefaultDetector() DetectorConfig {
	return DetectorConfig{
		PriceIncrease1m:           2.0,
		PriceIncrease5m:           5.0,
		VolumeSpikeMultiplier:     2.0,
		MinVolumeUSDT:             500,
		RSIOverbought:             60,
		MomentumThreshold:         1.5,
		MinConfidence:             60,
		RecentPumpPriceThreshold:  5.0,
		RecentPumpVolumeThreshold: 3.0,
		LookbackCandles:           20,
		Cooldown:                  600 * time.Second,
		BufferCapacity:            BufferCapacity,
	}
}

func Default() *Config {
	return &Config{
		Venue:    "mexc",
		Detector: DefaultDetector(),
		Dispatcher: DispatcherConfig{
			CandleQueueCapacity: CandleQueueCapacity,
			SignalQueueCapacity: SignalQueueCapacity,
			BatchSize:           BatchSize,
			CleanupEvery:        CleanupEvery,
			BufferCapacity:      BufferCapacity,
			TradeHistoryCap:     TradeHistoryCap,
		},
		Population: PopulationConfig{
			MaxStrategies:    DefaultMaxStrategies,
			PositionSizeUSDT: DefaultPositionSizeUSDT,
			Grid:             DefaultGrid(),
		},
		Report:  ReportConfig{Interval: ReportInterval, TopN: TopN},
		Export:  ExportConfig{Dir: ".", SQLitePath: "data/pumpradar.db"},
		Metrics: MetricsConfig{Addr: ":9100"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load 依次叠加默认值、YAML 文件、环境变量（含 .env），最后校验
func Load(path string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Venue = getEnv(envPrefix+"VENUE", c.Venue)
	if raw := os.Getenv(envPrefix + "SYMBOLS"); raw != "" {
		c.Symbols = lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
			return strings.ToUpper(strings.TrimSpace(s))
		}))
	}
	c.Population.MaxStrategies = getEnvInt(envPrefix+"MAX_STRATEGIES", c.Population.MaxStrategies)
	c.Population.Seed = int64(getEnvInt(envPrefix+"SEED", int(c.Population.Seed)))
	c.Population.PositionSizeUSDT = getEnvFloat(envPrefix+"POSITION_SIZE_USDT", c.Population.PositionSizeUSDT)
	c.Detector.MinConfidence = getEnvFloat(envPrefix+"MIN_CONFIDENCE", c.Detector.MinConfidence)
	c.Export.Dir = getEnv(envPrefix+"EXPORT_DIR", c.Export.Dir)
	c.Export.SQLitePath = getEnv(envPrefix+"SQLITE_PATH", c.Export.SQLitePath)
	c.Metrics.Addr = getEnv(envPrefix+"METRICS_ADDR", c.Metrics.Addr)
	c.Log.Level = getEnv(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.JSON = getEnvBool(envPrefix+"LOG_JSON", c.Log.JSON)
	c.Binance.APIKey = getEnv("BINANCE_API_KEY", c.Binance.APIKey)
	c.Binance.SecretKey = getEnv("BINANCE_SECRET_KEY", c.Binance.SecretKey)
}

func (c *Config) Validate() error {
	if !slices.Contains(Venues, c.Venue) {
		return fmt.Errorf("%w: unknown venue %q", ErrInvalidConfig, c.Venue)
	}
	d := c.Detector
	if d.PriceIncrease1m <= 0 || d.PriceIncrease5m <= 0 || d.VolumeSpikeMultiplier <= 0 {
		return fmt.Errorf("%w: detector thresholds must be positive", ErrInvalidConfig)
	}
	if d.LookbackCandles < 2 || d.BufferCapacity < 20 || d.BufferCapacity <= d.LookbackCandles {
		return fmt.Errorf("%w: buffer capacity %d must hold the %d candle lookback and at least 20 candles",
			ErrInvalidConfig, d.BufferCapacity, d.LookbackCandles)
	}
	if d.Cooldown < 0 {
		return fmt.Errorf("%w: negative cooldown", ErrInvalidConfig)
	}
	p := c.Dispatcher
	if p.CandleQueueCapacity <= 0 || p.SignalQueueCapacity <= 0 || p.BatchSize <= 0 || p.CleanupEvery <= 0 {
		return fmt.Errorf("%w: dispatcher sizes must be positive", ErrInvalidConfig)
	}
	if c.Population.MaxStrategies < 2 {
		return fmt.Errorf("%w: max_strategies %d must be at least 2", ErrInvalidGrid, c.Population.MaxStrategies)
	}
	if c.Population.PositionSizeUSDT <= 0 {
		return fmt.Errorf("%w: position size must be positive", ErrInvalidGrid)
	}
	if c.Population.EntryFillCandles < 0 {
		return fmt.Errorf("%w: entry_fill_candles must not be negative", ErrInvalidGrid)
	}
	return c.Population.Grid.Validate()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
