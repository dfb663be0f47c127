// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once at start-up
// and passed by value to constructors; nothing mutates it afterwards.
type Config struct {
	Solana    SolanaConfig    `mapstructure:"solana"`
	Jupiter   JupiterConfig   `mapstructure:"jupiter"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
}

// SolanaConfig holds node endpoints.
type SolanaConfig struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	WSEndpoint  string `mapstructure:"ws_endpoint"`
}

// JupiterConfig holds aggregator API settings.
type JupiterConfig struct {
	APIURL       string  `mapstructure:"api_url"`
	APIKey       string  `mapstructure:"api_key"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
}

// WalletConfig holds the signing key (base58 encoded 64-byte secret).
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// TradingConfig holds amounts, slippage and fee settings.
type TradingConfig struct {
	BuyAmountSOL               string  `mapstructure:"buy_amount_sol"`
	SlippageBps                int     `mapstructure:"slippage_bps"`
	NewAssetMode               bool    `mapstructure:"new_asset_mode"`
	NewAssetSlippageMultiplier float64 `mapstructure:"new_asset_slippage_multiplier"`
	MinSlippageBps             int     `mapstructure:"min_slippage_bps"`
	MaxSlippageBps             int     `mapstructure:"max_slippage_bps"`

	PriorityFeeLamports           uint64 `mapstructure:"priority_fee_lamports"`
	PriorityLevel                 string `mapstructure:"priority_level"`
	ComputeUnitLimit              uint32 `mapstructure:"compute_unit_limit"`
	ComputeUnitPriceMicroLamports uint64 `mapstructure:"compute_unit_price_micro_lamports"`

	SellDelaySeconds int `mapstructure:"sell_delay_seconds"`
}

// TimingConfig holds poll and retry timings in milliseconds.
type TimingConfig struct {
	BalanceCheckRetries int `mapstructure:"balance_check_retries"`
	BalanceCheckDelayMs int `mapstructure:"balance_check_delay_ms"`
	MaxRetryDurationMs  int `mapstructure:"max_retry_duration_ms"`
	RetryDelayMs        int `mapstructure:"retry_delay_ms"`
	ConfirmTimeoutMs    int `mapstructure:"confirm_timeout_ms"`
	ConfirmPollMs       int `mapstructure:"confirm_poll_ms"`
}

// StorageConfig holds the optional position journal database.
type StorageConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// TelemetryConfig holds the metrics listener.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// TelegramConfig holds cycle notification settings.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// ErrMissingPrivateKey is returned by RequireWallet when no key is configured.
var ErrMissingPrivateKey = errors.New("wallet.private_key is required")

// Load reads envFile (if present) into the environment, then builds the
// configuration from defaults, an optional YAML file and environment variables.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// Solana
	v.BindEnv("solana.rpc_endpoint", "SOLANA_RPC_ENDPOINT")
	v.BindEnv("solana.ws_endpoint", "SOLANA_WS_ENDPOINT")

	// Jupiter
	v.BindEnv("jupiter.api_url", "JUPITER_API_URL")
	v.BindEnv("jupiter.api_key", "JUPITER_API_KEY")
	v.BindEnv("jupiter.rate_limit_rps", "JUPITER_RATE_LIMIT_RPS")

	// Wallet
	v.BindEnv("wallet.private_key", "PRIVATE_KEY")

	// Trading
	v.BindEnv("trading.buy_amount_sol", "BUY_AMOUNT_SOL")
	v.BindEnv("trading.slippage_bps", "SLIPPAGE_BPS")
	v.BindEnv("trading.new_asset_mode", "NEW_ASSET_MODE")
	v.BindEnv("trading.new_asset_slippage_multiplier", "NEW_ASSET_SLIPPAGE_MULTIPLIER")
	v.BindEnv("trading.min_slippage_bps", "MIN_SLIPPAGE_BPS")
	v.BindEnv("trading.max_slippage_bps", "MAX_SLIPPAGE_BPS")
	v.BindEnv("trading.priority_fee_lamports", "PRIORITY_FEE_LAMPORTS")
	v.BindEnv("trading.priority_level", "PRIORITY_LEVEL")
	v.BindEnv("trading.compute_unit_limit", "COMPUTE_UNIT_LIMIT")
	v.BindEnv("trading.compute_unit_price_micro_lamports", "COMPUTE_UNIT_PRICE_MICRO_LAMPORTS")
	v.BindEnv("trading.sell_delay_seconds", "SELL_DELAY_SECONDS")

	// Timing
	v.BindEnv("timing.balance_check_retries", "BALANCE_CHECK_RETRIES")
	v.BindEnv("timing.balance_check_delay_ms", "BALANCE_CHECK_DELAY_MS")
	v.BindEnv("timing.max_retry_duration_ms", "MAX_RETRY_DURATION_MS")
	v.BindEnv("timing.retry_delay_ms", "RETRY_DELAY_MS")
	v.BindEnv("timing.confirm_timeout_ms", "CONFIRM_TIMEOUT_MS")
	v.BindEnv("timing.confirm_poll_ms", "CONFIRM_POLL_MS")

	// Integrations
	v.BindEnv("storage.postgres_dsn", "POSTGRES_DSN")
	v.BindEnv("telemetry.metrics_addr", "METRICS_ADDR")
	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
	v.BindEnv("log.dir", "LOG_DIR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("jupiter.api_url", "https://lite-api.jup.ag/swap/v1")
	v.SetDefault("jupiter.rate_limit_rps", 1)

	v.SetDefault("trading.buy_amount_sol", "0.01")
	v.SetDefault("trading.slippage_bps", 100)
	v.SetDefault("trading.new_asset_mode", false)
	v.SetDefault("trading.new_asset_slippage_multiplier", 3)
	v.SetDefault("trading.min_slippage_bps", 300)
	v.SetDefault("trading.max_slippage_bps", 5000)
	v.SetDefault("trading.priority_fee_lamports", 1_000_000)
	v.SetDefault("trading.priority_level", "veryHigh")
	v.SetDefault("trading.compute_unit_limit", 0)                // unset
	v.SetDefault("trading.compute_unit_price_micro_lamports", 0) // unset
	v.SetDefault("trading.sell_delay_seconds", 60)

	v.SetDefault("timing.balance_check_retries", 5)
	v.SetDefault("timing.balance_check_delay_ms", 2000)
	v.SetDefault("timing.max_retry_duration_ms", 60000)
	v.SetDefault("timing.retry_delay_ms", 1000)
	v.SetDefault("timing.confirm_timeout_ms", 60000)
	v.SetDefault("timing.confirm_poll_ms", 2000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Solana.RPCEndpoint == "" {
		return fmt.Errorf("solana.rpc_endpoint is required")
	}
	if c.Jupiter.APIURL == "" {
		return fmt.Errorf("jupiter.api_url is required")
	}
	if c.Jupiter.RateLimitRPS <= 0 {
		return fmt.Errorf("jupiter.rate_limit_rps must be positive")
	}
	if _, err := c.BuyLamports(); err != nil {
		return err
	}
	if c.Trading.SlippageBps <= 0 {
		return fmt.Errorf("trading.slippage_bps must be positive")
	}
	if c.Trading.MinSlippageBps > c.Trading.MaxSlippageBps {
		return fmt.Errorf("trading.min_slippage_bps (%d) exceeds trading.max_slippage_bps (%d)",
			c.Trading.MinSlippageBps, c.Trading.MaxSlippageBps)
	}
	if c.Trading.NewAssetSlippageMultiplier <= 0 {
		return fmt.Errorf("trading.new_asset_slippage_multiplier must be positive")
	}
	if c.Trading.SellDelaySeconds < 0 {
		return fmt.Errorf("trading.sell_delay_seconds cannot be negative")
	}
	if c.Timing.BalanceCheckRetries < 0 {
		return fmt.Errorf("timing.balance_check_retries cannot be negative")
	}
	if c.Timing.ConfirmPollMs <= 0 || c.Timing.ConfirmTimeoutMs <= 0 {
		return fmt.Errorf("timing.confirm_poll_ms and timing.confirm_timeout_ms must be positive")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required with telegram.bot_token")
	}
	return nil
}

// RequireWallet checks that a signing key is configured. Read-only tools
// (route probing) skip it.
func (c *Config) RequireWallet() error {
	if c.Wallet.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

// BuyLamports converts the configured SOL amount to lamports.
func (c *Config) BuyLamports() (uint64, error) {
	return SOLToLamports(c.Trading.BuyAmountSOL)
}

// SOLToLamports parses a decimal SOL amount into lamports, truncating below one lamport.
func SOLToLamports(sol string) (uint64, error) {
	amount, err := decimal.NewFromString(sol)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", sol, err)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("SOL amount must be positive, got %s", sol)
	}
	lamports := amount.Shift(9).Truncate(0)
	if lamports.IsZero() {
		return 0, fmt.Errorf("SOL amount %s is below one lamport", sol)
	}
	return uint64(lamports.IntPart()), nil
}

// SellDelay returns the hold duration between buy and sell.
func (c *Config) SellDelay() time.Duration {
	return time.Duration(c.Trading.SellDelaySeconds) * time.Second
}

// BalanceCheckDelay returns the balance repoll interval.
func (c *Config) BalanceCheckDelay() time.Duration {
	return time.Duration(c.Timing.BalanceCheckDelayMs) * time.Millisecond
}

// MaxRetryDuration bounds the availability probe.
func (c *Config) MaxRetryDuration() time.Duration {
	return time.Duration(c.Timing.MaxRetryDurationMs) * time.Millisecond
}

// RetryDelay returns the base backoff of the outer swap retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Timing.RetryDelayMs) * time.Millisecond
}

// ConfirmTimeout returns the wall-clock confirmation bound.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Timing.ConfirmTimeoutMs) * time.Millisecond
}

// ConfirmPoll returns the confirmation poll interval.
func (c *Config) ConfirmPoll() time.Duration {
	return time.Duration(c.Timing.ConfirmPollMs) * time.Millisecond
}
