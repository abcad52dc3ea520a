package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/kafkasink"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ServerConfig holds everything the binary needs beyond the engine sections.
// It lives under the "server" key of the same file and is overridable with
// GOGUARD_SERVER_* variables.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	SMTP     notify.SMTPConfig `mapstructure:"smtp"`
	GeoIP    GeoIPConfig       `mapstructure:"geoip"`
	Kafka    kafkasink.Config  `mapstructure:"kafka"`
	Log      LogConfig         `mapstructure:"log"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GeoIPConfig struct {
	// Path to a MaxMind City database. Empty disables geolocation.
	Path        string        `mapstructure:"path"`
	CachePrefix string        `mapstructure:"cache_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		ShutdownTimeout: 15 * time.Second,
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		GeoIP: GeoIPConfig{
			CachePrefix: "ageo",
			CacheTTL:    24 * time.Hour,
		},
		Kafka: kafkasink.Config{
			Topic:        "goguard.audit",
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

func (c ServerConfig) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("server.database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("server.database.dsn is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("server.redis.addr is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.SMTP.Host != "" {
		if err := c.SMTP.Validate(); err != nil {
			return fmt.Errorf("server.smtp: %w", err)
		}
	}
	return nil
}

// loadConfig reads path (optional) into one viper instance and decodes both
// the engine config and the server section.
func loadConfig(path string) (ServerConfig, goGuard.Config, error) {
	v := goGuard.NewViper()
	setServerDefaults(v, defaultServerConfig())

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return ServerConfig{}, goGuard.Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return ServerConfig{}, goGuard.Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	engineCfg, err := goGuard.ConfigFromViper(v)
	if err != nil {
		return ServerConfig{}, goGuard.Config{}, err
	}

	// Unmarshal rather than UnmarshalKey so that GOGUARD_SERVER_* leaves
	// are merged into the section.
	wrapper := struct {
		Server ServerConfig `mapstructure:"server"`
	}{Server: defaultServerConfig()}
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&wrapper, hooks); err != nil {
		return ServerConfig{}, goGuard.Config{}, fmt.Errorf("decode server config: %w", err)
	}
	srv := wrapper.Server
	if err := srv.Validate(); err != nil {
		return ServerConfig{}, goGuard.Config{}, err
	}
	return srv, engineCfg, nil
}

// setServerDefaults registers every server key so AutomaticEnv can see it.
func setServerDefaults(v *viper.Viper, d ServerConfig) {
	v.SetDefault("server.http_addr", d.HTTPAddr)
	v.SetDefault("server.metrics_addr", d.MetricsAddr)
	v.SetDefault("server.shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("server.database.driver", d.Database.Driver)
	v.SetDefault("server.database.dsn", d.Database.DSN)

	v.SetDefault("server.redis.addr", d.Redis.Addr)
	v.SetDefault("server.redis.password", d.Redis.Password)
	v.SetDefault("server.redis.db", d.Redis.DB)

	v.SetDefault("server.smtp.host", d.SMTP.Host)
	v.SetDefault("server.smtp.port", d.SMTP.Port)
	v.SetDefault("server.smtp.username", d.SMTP.Username)
	v.SetDefault("server.smtp.password", d.SMTP.Password)
	v.SetDefault("server.smtp.from", d.SMTP.From)
	v.SetDefault("server.smtp.tls_enable", d.SMTP.TLSEnable)
	v.SetDefault("server.smtp.tls_insecure_skip_verify", d.SMTP.TLSInsecureSkipVerify)

	v.SetDefault("server.geoip.path", d.GeoIP.Path)
	v.SetDefault("server.geoip.cache_prefix", d.GeoIP.CachePrefix)
	v.SetDefault("server.geoip.cache_ttl", d.GeoIP.CacheTTL)

	v.SetDefault("server.kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("server.kafka.topic", d.Kafka.Topic)
	v.SetDefault("server.kafka.batch_timeout", d.Kafka.BatchTimeout)
	v.SetDefault("server.kafka.write_timeout", d.Kafka.WriteTimeout)

	v.SetDefault("server.log.level", d.Log.Level)
	v.SetDefault("server.log.format", d.Log.Format)
	v.SetDefault("server.log.file", d.Log.File)
	v.SetDefault("server.log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("server.log.max_backups", d.Log.MaxBackups)
	v.SetDefault("server.log.max_age_days", d.Log.MaxAgeDays)
}
