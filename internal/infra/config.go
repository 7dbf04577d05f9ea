package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"mmsim/internal/domain"
)

// DefaultConfigPath is where the CLI looks for its configuration.
const DefaultConfigPath = "configs/config.yaml"

// 기본값: 원본 시뮬레이터의 상수와 동일합니다.
const (
	DefaultSnapshotPeriodSec = 300
	DefaultModifyLimitSec    = 300
	DefaultWarmupOrders      = 100
	DefaultExpiryPollSec     = 300
	DefaultArrivalJitterSec  = 300
	DefaultVolumeBins        = 1000
	DefaultArrivalBins       = 10000
	DefaultDumpFile          = "panic_dump.json"
	DefaultLogDir            = "logs"
)

var (
	errRequired = errors.New("required")
	errPositive = errors.New("must be positive")
	errNegative = errors.New("must not be negative")
)

// TypeConfig describes one simulated asset type.
type TypeConfig struct {
	TypeID    int64           `yaml:"type_id"`
	RefPrice  decimal.Decimal `yaml:"ref_price"`
	RefSpread decimal.Decimal `yaml:"ref_spread"`
}

// Config는 시뮬레이터의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 실행별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Simulation struct {
		Seed              int64  `yaml:"seed"`
		DurationDays      int    `yaml:"duration_days"`
		SnapshotPeriodSec int64  `yaml:"snapshot_period_sec"`
		WarmupOrders      int    `yaml:"warmup_orders"`
		ExpiryPollSec     int64  `yaml:"expiry_poll_sec"`
		ArrivalJitterSec  int64  `yaml:"arrival_jitter_sec"`
		VolumeBins        int    `yaml:"volume_bins"`
		ArrivalBins       int    `yaml:"arrival_bins"`
		DumpFile          string `yaml:"dump_file"`
	} `yaml:"simulation"`

	Fees struct {
		BrokerRate     decimal.Decimal `yaml:"broker_rate"`
		TaxRate        decimal.Decimal `yaml:"tax_rate"`
		OrderChangeFee decimal.Decimal `yaml:"order_change_fee"`
		ModifyLimitSec int64           `yaml:"modify_limit_sec"`
	} `yaml:"fees"`

	Types []TypeConfig `yaml:"types"`

	Calibration struct {
		Path   string `yaml:"path"`
		Source string `yaml:"source"` // "file" or "db"
	} `yaml:"calibration"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"storage"`

	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"feed"`

	Strategy struct {
		Name        string          `yaml:"name"` // market_maker, trend or none
		Volume      int64           `yaml:"volume"`
		Duration    int             `yaml:"duration"`
		MinSpread   decimal.Decimal `yaml:"min_spread"`
		ShortPeriod int             `yaml:"short_period"`
		LongPeriod  int             `yaml:"long_period"`
	} `yaml:"strategy"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML document, fills defaults, applies env overrides and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// 4원칙: 실행별 값은 환경 변수로 덮어쓰기 지원
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Simulation
	if s.SnapshotPeriodSec == 0 {
		s.SnapshotPeriodSec = DefaultSnapshotPeriodSec
	}
	if s.WarmupOrders == 0 {
		s.WarmupOrders = DefaultWarmupOrders
	}
	if s.ExpiryPollSec == 0 {
		s.ExpiryPollSec = DefaultExpiryPollSec
	}
	if s.ArrivalJitterSec == 0 {
		s.ArrivalJitterSec = DefaultArrivalJitterSec
	}
	if s.VolumeBins == 0 {
		s.VolumeBins = DefaultVolumeBins
	}
	if s.ArrivalBins == 0 {
		s.ArrivalBins = DefaultArrivalBins
	}
	if s.DumpFile == "" {
		s.DumpFile = DefaultDumpFile
	}
	if c.Fees.ModifyLimitSec == 0 {
		c.Fees.ModifyLimitSec = DefaultModifyLimitSec
	}
	if c.Calibration.Source == "" {
		c.Calibration.Source = "file"
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "none"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Simulation
	if c.Simulation.DurationDays <= 0 {
		return &domain.ConfigError{Field: "simulation.duration_days", Err: errPositive}
	}
	if c.Simulation.SnapshotPeriodSec <= 0 {
		return &domain.ConfigError{Field: "simulation.snapshot_period_sec", Err: errPositive}
	}
	if c.Simulation.WarmupOrders < 0 {
		return &domain.ConfigError{Field: "simulation.warmup_orders", Err: errNegative}
	}
	if c.Simulation.ExpiryPollSec <= 0 {
		return &domain.ConfigError{Field: "simulation.expiry_poll_sec", Err: errPositive}
	}
	if c.Simulation.ArrivalJitterSec < 0 {
		return &domain.ConfigError{Field: "simulation.arrival_jitter_sec", Err: errNegative}
	}
	if c.Simulation.VolumeBins <= 0 || c.Simulation.ArrivalBins <= 0 {
		return &domain.ConfigError{Field: "simulation.bins", Err: errPositive}
	}

	// Fees
	if c.Fees.BrokerRate.IsNegative() {
		return &domain.ConfigError{Field: "fees.broker_rate", Err: errNegative}
	}
	if c.Fees.TaxRate.IsNegative() {
		return &domain.ConfigError{Field: "fees.tax_rate", Err: errNegative}
	}
	if c.Fees.OrderChangeFee.IsNegative() {
		return &domain.ConfigError{Field: "fees.order_change_fee", Err: errNegative}
	}
	if c.Fees.ModifyLimitSec < 0 {
		return &domain.ConfigError{Field: "fees.modify_limit_sec", Err: errNegative}
	}

	// Types
	if len(c.Types) == 0 {
		return &domain.ConfigError{Field: "types", Err: errRequired}
	}
	seen := make(map[int64]bool, len(c.Types))
	for i, t := range c.Types {
		field := fmt.Sprintf("types[%d]", i)
		if seen[t.TypeID] {
			return &domain.ConfigError{Field: field + ".type_id", Err: fmt.Errorf("duplicate type %d", t.TypeID)}
		}
		seen[t.TypeID] = true
		if !t.RefPrice.IsPositive() {
			return &domain.ConfigError{Field: field + ".ref_price", Err: errPositive}
		}
		if t.RefSpread.IsNegative() {
			return &domain.ConfigError{Field: field + ".ref_spread", Err: errNegative}
		}
	}

	// Calibration
	switch c.Calibration.Source {
	case "file":
		if c.Calibration.Path == "" {
			return &domain.ConfigError{Field: "calibration.path", Err: errRequired}
		}
	case "db":
		if !c.Storage.Enabled {
			return &domain.ConfigError{Field: "calibration.source", Err: errors.New("db source requires storage.enabled")}
		}
	default:
		return &domain.ConfigError{Field: "calibration.source", Err: fmt.Errorf("unknown source %q", c.Calibration.Source)}
	}

	// Storage / Feed
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return &domain.ConfigError{Field: "storage.db_path", Err: errRequired}
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		return &domain.ConfigError{Field: "feed.addr", Err: errRequired}
	}

	// Strategy
	switch c.Strategy.Name {
	case "none":
	case "market_maker", "trend":
		if c.Strategy.Volume <= 0 {
			return &domain.ConfigError{Field: "strategy.volume", Err: errPositive}
		}
		if c.Strategy.Name == "market_maker" && !domain.IsAllowedDuration(c.Strategy.Duration) {
			return &domain.ConfigError{Field: "strategy.duration", Err: fmt.Errorf("%d days not in %v", c.Strategy.Duration, domain.AllowedDurations)}
		}
		if c.Strategy.Name == "trend" && (c.Strategy.ShortPeriod <= 0 || c.Strategy.LongPeriod <= c.Strategy.ShortPeriod) {
			return &domain.ConfigError{Field: "strategy.short_period", Err: errors.New("need 0 < short_period < long_period")}
		}
	default:
		return &domain.ConfigError{Field: "strategy.name", Err: fmt.Errorf("unknown strategy %q", c.Strategy.Name)}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("MMSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: "MMSIM_SEED", Err: err}
		}
		cfg.Simulation.Seed = seed
	}
	if v := os.Getenv("MMSIM_DURATION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "MMSIM_DURATION_DAYS", Err: err}
		}
		cfg.Simulation.DurationDays = days
	}
	if v := os.Getenv("MMSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MMSIM_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	return nil
}
