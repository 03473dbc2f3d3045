package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment (and an
// optional config file) through viper.
type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Port        string `mapstructure:"PORT"`
	GRPCPort    string `mapstructure:"GRPC_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`

	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBatchSize      int           `mapstructure:"SWEEP_BATCH_SIZE"`
	ReconcileInterval   time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileWindowDays int           `mapstructure:"RECONCILE_WINDOW_DAYS"`
	ReminderOffsets     string        `mapstructure:"REMINDER_OFFSETS"`
	ScheduleLookback    int           `mapstructure:"SCHEDULE_LOOKBACK_DAYS"`
	OutboxInterval      time.Duration `mapstructure:"OUTBOX_PUBLISH_INTERVAL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	OTELEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLER_RATIO"`
}

var defaults = map[string]any{
	"SERVICE_NAME":                "scheduling-service",
	"PORT":                        "8080",
	"GRPC_PORT":                   "9090",
	"DATABASE_URL":                "",
	"DB_MAX_CONNS":                10,
	"DB_MIN_CONNS":                1,
	"REDIS_URL":                   "",
	"KAFKA_BROKERS":               "",
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "clinicbook",
	"CLINIC_TIMEZONE":             "UTC",
	"SWEEP_INTERVAL":              "1m",
	"SWEEP_BATCH_SIZE":            200,
	"RECONCILE_INTERVAL":          "10m",
	"RECONCILE_WINDOW_DAYS":       14,
	"REMINDER_OFFSETS":            "24h,1h",
	"SCHEDULE_LOOKBACK_DAYS":      14,
	"OUTBOX_PUBLISH_INTERVAL":     "2s",
	"RATE_LIMIT_RPS":              20.0,
	"RATE_LIMIT_BURST":            40,
	"LOG_LEVEL":                   "info",
	"LOG_FILE":                    "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_TRACES_SAMPLER_RATIO":   1.0,
}

// Load reads configuration from the environment. When configFile is not
// empty it is read first and environment variables override it.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validPort("PORT", c.Port); err != nil {
		return err
	}
	if err := validPort("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive (got %s)", c.SweepInterval)
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive (got %s)", c.ReconcileInterval)
	}
	if c.ScheduleLookback < 1 {
		return fmt.Errorf("SCHEDULE_LOOKBACK_DAYS must be at least 1 (got %d)", c.ScheduleLookback)
	}
	return nil
}

// RequireDatabase reports an error when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Location returns the clinic time zone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Reminders parses REMINDER_OFFSETS ("24h,1h") into durations, skipping
// blanks and non-positive values.
func (c *Config) Reminders() ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(c.ReminderOffsets, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("REMINDER_OFFSETS: %w", err)
		}
		if d > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func validPort(key, v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return nil
}
