package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Operator OperatorConfig `mapstructure:"operator"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// OperatorConfig configures authentication of the operator confirmation feed.
type OperatorConfig struct {
	CallbackSecret string        `mapstructure:"callback_secret"` // Shared HMAC secret for signed confirmation callbacks
	MaxDrift       time.Duration `mapstructure:"max_drift"`       // Allowed timestamp skew on signed callbacks
	NonceTTL       time.Duration `mapstructure:"nonce_ttl"`
}

// LedgerConfig holds the ledger policy knobs. Confirmation timeout,
// reversal window and amount limits are deployment policy, tuned per corridor.
type LedgerConfig struct {
	ConfirmationTimeout  time.Duration `mapstructure:"confirmation_timeout"`   // Pending entries older than this are failed
	ReversalWindow       time.Duration `mapstructure:"reversal_window"`        // Confirmed entries may be reversed within this window
	MaxAccountBalance    int64         `mapstructure:"max_account_balance"`    // Balance ceiling, minor units
	MaxTransactionAmount int64         `mapstructure:"max_transaction_amount"` // Per-entry amount cap, minor units
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`         // How often the timeout sweeper runs
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: STP_ (StellarPay).
// Nested keys use underscore: STP_DATABASE_HOST, STP_LEDGER_REVERSAL_WINDOW, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "stellarpay_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "stellarpay-ledger")
	v.SetDefault("operator.callback_secret", "")
	v.SetDefault("operator.max_drift", "60s")
	v.SetDefault("operator.nonce_ttl", "120s")
	v.SetDefault("ledger.confirmation_timeout", "10m")
	v.SetDefault("ledger.reversal_window", "72h")
	v.SetDefault("ledger.max_account_balance", 100000000)
	v.SetDefault("ledger.max_transaction_amount", 10000000)
	v.SetDefault("ledger.sweep_interval", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: STP_DATABASE_HOST -> database.host
	v.SetEnvPrefix("STP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
