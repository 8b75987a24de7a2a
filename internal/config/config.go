package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "MICROSERVICE"

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig with an empty Addr selects the process-local session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type SecurityConfig struct {
	PrivateKeyPath   string
	PublicKeyPath    string
	LegacySecret     string
	VerificationMode string
	AccessTokenTTL   time.Duration
	RefreshTokenDays int
	ClockSkew        time.Duration
	BcryptCost       int
	HashConcurrency  int
	LoginPerMinute   int
	LoginBurst       int
}

func (s SecurityConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(s.RefreshTokenDays) * 24 * time.Hour
}

type IdentityConfig struct {
	BaseURL string
	Timeout time.Duration
}

type EventsConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MinIdle       time.Duration
}

type JobsConfig struct {
	PruneSchedule string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Service          string
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Identity         IdentityConfig
	Events           EventsConfig
	Jobs             JobsConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

// Load reads <service>.yaml, an optional .env file and MICROSERVICE_* variables.
// MICROSERVICE_SECURITY_ACCESSTOKENTTL overrides security.accesstokenttl.
func Load(service string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, service)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Security.VerificationMode {
	case "strict", "dual":
	default:
		return fmt.Errorf("security.verificationmode must be strict or dual, got %q", c.Security.VerificationMode)
	}
	if c.Security.VerificationMode == "dual" && c.Security.LegacySecret == "" {
		return errors.New("security.legacysecret is required in dual verification mode")
	}
	if c.Security.AccessTokenTTL <= 0 {
		return errors.New("security.accesstokenttl must be positive")
	}
	if c.Security.RefreshTokenDays <= 0 {
		return errors.New("security.refreshtokendays must be positive")
	}
	if c.Security.ClockSkew < 0 {
		return errors.New("security.clockskew must not be negative")
	}
	return nil
}

// Every key is registered here so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("service", service)
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", defaultPort(service))
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrateonstart", false)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 20)

	v.SetDefault("security.privatekeypath", "")
	v.SetDefault("security.publickeypath", "")
	v.SetDefault("security.legacysecret", "")
	v.SetDefault("security.verificationmode", "strict")
	v.SetDefault("security.accesstokenttl", "30m")
	v.SetDefault("security.refreshtokendays", 7)
	v.SetDefault("security.clockskew", "0s")
	v.SetDefault("security.bcryptcost", 12)
	v.SetDefault("security.hashconcurrency", 0)
	v.SetDefault("security.loginperminute", 20)
	v.SetDefault("security.loginburst", 5)

	v.SetDefault("identity.baseurl", "http://127.0.0.1:8080/api/v1")
	v.SetDefault("identity.timeout", "10s")

	v.SetDefault("events.stream", "identity:events")
	v.SetDefault("events.group", "posts-workers")
	v.SetDefault("events.consumer", "worker-1")
	v.SetDefault("events.claiminterval", "30s")
	v.SetDefault("events.minidle", "2m")

	v.SetDefault("jobs.pruneschedule", "0 30 3 * * *")

	v.SetDefault("logging.level", "")

	v.SetDefault("allowcorsorigins", []string{})
}

func defaultPort(service string) int {
	switch service {
	case "posts":
		return 8081
	case "worker":
		return 8082
	default:
		return 8080
	}
}
