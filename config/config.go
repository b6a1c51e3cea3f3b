package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	PlatformRedis       = "redis"
	PlatformStatic      = "static"
)

// Environment variables read on top of the yaml file.
const (
	EnvOwnerKey      = "RISKVAULT_OWNER_KEY"
	EnvHTTPAddr      = "RISKVAULT_HTTP_ADDR"
	EnvDataDir       = "RISKVAULT_DATA_DIR"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
)

type Config struct {
	Platform        string
	Pair            domain.Pair
	StaticPrice     decimal.Decimal
	MaxStaleness    time.Duration
	Vault           vault.Config
	OwnerKey        string
	TokenSymbol     string
	RefreshSchedule string
	UpkeepSchedule  string
	JobTimeout      time.Duration
	HTTPAddr        string
	DataDir         string
	Redis           RedisConfig
	HyperliquidURL  string
	EMAPeriod       int
	ATRPeriod       int
	TLSDomains      []string
	TLSCacheDir     string
}

type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
}

// ConfigTmp is the yaml form. Monetary values are strings so no precision is lost.
type ConfigTmp struct {
	Platform              string        `yaml:"platform"`
	Pair                  string        `yaml:"pair"`
	Owner                 string        `yaml:"owner,omitempty"`
	VaultAddress          string        `yaml:"vault_address,omitempty"`
	BaseLimit             string        `yaml:"base_limit"`
	PriceThreshold        string        `yaml:"price_threshold"`
	HighMultiplierBps     *uint32       `yaml:"high_multiplier_bps,omitempty"`
	LowMultiplierBps      *uint32       `yaml:"low_multiplier_bps,omitempty"`
	RebalanceThresholdBps *uint32       `yaml:"rebalance_threshold_bps,omitempty"`
	MinInterval           time.Duration `yaml:"min_interval,omitempty"`
	MaxHistoryLength      int           `yaml:"max_history_length,omitempty"`
	UpdateCooldown        time.Duration `yaml:"update_cooldown,omitempty"`
	LowBandUpperBps       uint32        `yaml:"low_band_upper_bps,omitempty"`
	HighBandLowerBps      uint32        `yaml:"high_band_lower_bps,omitempty"`
	StaticPrice           string        `yaml:"static_price,omitempty"`
	MaxStaleness          time.Duration `yaml:"max_staleness,omitempty"`
	TokenSymbol           string        `yaml:"token_symbol,omitempty"`
	RefreshSchedule       string        `yaml:"refresh_schedule,omitempty"`
	UpkeepSchedule        string        `yaml:"upkeep_schedule,omitempty"`
	JobTimeout            time.Duration `yaml:"job_timeout,omitempty"`
	HTTPAddr              string        `yaml:"http_addr,omitempty"`
	DataDir               string        `yaml:"data_dir,omitempty"`
	Redis                 RedisConfig   `yaml:"redis,omitempty"`
	HyperliquidURL        string        `yaml:"hyperliquid_url,omitempty"`
	EMAPeriod             int           `yaml:"ema_period,omitempty"`
	ATRPeriod             int           `yaml:"atr_period,omitempty"`
	TLSDomains            []string      `yaml:"tls_domains,omitempty"`
	TLSCacheDir           string        `yaml:"tls_cache_dir,omitempty"`
}

// LoadEnv loads KEY=VALUE pairs from path into the environment. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "load env file %s", path)
}

// Load reads the yaml file at path and applies environment overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	applyEnv(&tmp)
	applyDefaults(&tmp)
	return tmp.build(os.Getenv(EnvOwnerKey))
}

func applyEnv(c *ConfigTmp) {
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
}

func u32(v uint32) *uint32 { return &v }

// Defaults fills omitted keys.
func applyDefaults(c *ConfigTmp) {
	if c.Platform == "" {
		c.Platform = PlatformStatic
	}
	if c.Pair == "" {
		c.Pair = "ETH_USDT"
	}
	if c.HighMultiplierBps == nil {
		c.HighMultiplierBps = u32(5000)
	}
	if c.LowMultiplierBps == nil {
		c.LowMultiplierBps = u32(5000)
	}
	if c.RebalanceThresholdBps == nil {
		c.RebalanceThresholdBps = u32(100)
	}
	if c.MinInterval == 0 {
		c.MinInterval = time.Hour
	}
	if c.MaxHistoryLength == 0 {
		c.MaxHistoryLength = 20
	}
	if c.UpdateCooldown == 0 {
		c.UpdateCooldown = 5 * time.Minute
	}
	if c.LowBandUpperBps == 0 && c.HighBandLowerBps == 0 {
		bands := domain.DefaultAllocationBands()
		c.LowBandUpperBps = uint32(bands.LowUpperBps)
		c.HighBandLowerBps = uint32(bands.HighLowerBps)
	}
	if c.MaxStaleness == 0 {
		c.MaxStaleness = 2 * time.Minute
	}
	if c.TokenSymbol == "" {
		c.TokenSymbol = "USDX"
	}
	if c.RefreshSchedule == "" {
		c.RefreshSchedule = "0 */5 * * * *"
	}
	if c.UpkeepSchedule == "" {
		c.UpkeepSchedule = "30 * * * * *"
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 30 * time.Second
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Redis.Exchange == "" {
		c.Redis.Exchange = "binance"
	}
	if c.EMAPeriod == 0 {
		c.EMAPeriod = 20
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = 14
	}
	if len(c.TLSDomains) > 0 && c.TLSCacheDir == "" {
		c.TLSCacheDir = filepath.Join(c.DataDir, "certs")
	}
}

func (c ConfigTmp) build(ownerKey string) (Config, error) {
	pair, err := domain.ParsePair(c.Pair)
	if err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'pair' param in yaml config: %s", c.Pair)
	}

	switch c.Platform {
	case PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformRedis, PlatformStatic:
	default:
		return Config{}, errors.Errorf("unsupported platform %q", c.Platform)
	}

	owner, err := resolveOwner(c.Owner, ownerKey)
	if err != nil {
		return Config{}, err
	}

	var vaultAddr common.Address
	if c.VaultAddress != "" {
		if vaultAddr, err = identity.ParseAddress(c.VaultAddress); err != nil {
			return Config{}, errors.Wrap(err, "incorrect 'vault_address' param in yaml config")
		}
	}

	baseLimit, err := uint256.FromDecimal(strings.TrimSpace(c.BaseLimit))
	if err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'base_limit' param in yaml config (must be an integer amount): %q", c.BaseLimit)
	}
	threshold, err := domain.ParsePrice(c.PriceThreshold)
	if err != nil {
		return Config{}, errors.Wrap(err, "incorrect 'price_threshold' param in yaml config")
	}

	var staticPrice decimal.Decimal
	if c.StaticPrice != "" {
		if staticPrice, err = decimal.NewFromString(c.StaticPrice); err != nil {
			return Config{}, errors.Wrap(err, "incorrect 'static_price' param in yaml config")
		}
	}
	if c.Platform == PlatformStatic && !staticPrice.IsPositive() {
		staticPrice = threshold.Decimal()
	}

	cfg := Config{
		Platform:     c.Platform,
		Pair:         pair,
		StaticPrice:  staticPrice,
		MaxStaleness: c.MaxStaleness,
		Vault: vault.Config{
			Owner:   owner,
			Address: vaultAddr,
			DepositLimit: domain.DepositLimitConfig{
				BaseLimit:         *baseLimit,
				PriceThreshold:    threshold,
				HighMultiplierBps: domain.Bps(*c.HighMultiplierBps),
				LowMultiplierBps:  domain.Bps(*c.LowMultiplierBps),
			},
			RebalanceThresholdBps: domain.Bps(*c.RebalanceThresholdBps),
			MinInterval:           c.MinInterval,
			MaxHistoryLength:      c.MaxHistoryLength,
			UpdateCooldown:        c.UpdateCooldown,
			Bands: domain.AllocationBands{
				LowUpperBps:  domain.Bps(c.LowBandUpperBps),
				HighLowerBps: domain.Bps(c.HighBandLowerBps),
			},
		},
		OwnerKey:        ownerKey,
		TokenSymbol:     c.TokenSymbol,
		RefreshSchedule: c.RefreshSchedule,
		UpkeepSchedule:  c.UpkeepSchedule,
		JobTimeout:      c.JobTimeout,
		HTTPAddr:        c.HTTPAddr,
		DataDir:         c.DataDir,
		Redis:           c.Redis,
		HyperliquidURL:  c.HyperliquidURL,
		EMAPeriod:       c.EMAPeriod,
		ATRPeriod:       c.ATRPeriod,
		TLSDomains:      c.TLSDomains,
		TLSCacheDir:     c.TLSCacheDir,
	}
	if err := cfg.Vault.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveOwner prefers the configured owner and checks it against the key when both are given.
func resolveOwner(configured, key string) (common.Address, error) {
	var fromKey common.Address
	if key != "" {
		signer, err := identity.LoadKey(key)
		if err != nil {
			return common.Address{}, errors.Wrapf(err, "decode %s", EnvOwnerKey)
		}
		fromKey = signer.Address()
	}

	if configured == "" {
		if key == "" {
			return common.Address{}, errors.Errorf("'owner' param or %s is required", EnvOwnerKey)
		}
		return fromKey, nil
	}

	owner, err := identity.ParseAddress(configured)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "incorrect 'owner' param in yaml config")
	}
	if key != "" && owner != fromKey {
		return common.Address{}, errors.Errorf("%s belongs to %s, config owner is %s", EnvOwnerKey, fromKey.Hex(), owner.Hex())
	}
	return owner, nil
}

func (c Config) StatePath() string { return filepath.Join(c.DataDir, "vault_state.json") }

func (c Config) JournalDir() string { return filepath.Join(c.DataDir, "events") }

func (c Config) RecorderPath() string { return filepath.Join(c.DataDir, "riskvault.db") }

// Marshal renders tmp as yaml, used by the setup wizard.
func Marshal(tmp ConfigTmp) ([]byte, error) {
	data, err := yaml.Marshal(tmp)
	return data, errors.Wrap(err, "generate yaml")
}

// ParseBps parses a basis-point integer as typed by a user.
func ParseBps(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.Errorf("%q is not a basis-point integer", s)
	}
	return uint32(v), nil
}
