package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DispatcherConfig struct {
	PollInterval    time.Duration   `mapstructure:"poll_interval"`
	BatchSize       int             `mapstructure:"batch_size"`
	MaxRetries      int             `mapstructure:"max_retries"`
	BackoffSchedule []time.Duration `mapstructure:"backoff_schedule"`
}

type QueueConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
	SendDelay     time.Duration `mapstructure:"send_delay"`
}

type ProviderConfig struct {
	Name          string        `mapstructure:"name"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	FromAddress   string        `mapstructure:"from_address"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type ProvidersConfig struct {
	SMS   ProviderConfig `mapstructure:"sms"`
	Email ProviderConfig `mapstructure:"email"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("NOTIFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Dispatcher.PollInterval <= 0 {
		cfg.Dispatcher.PollInterval = 5 * time.Second
	}
	if cfg.Dispatcher.BatchSize <= 0 {
		cfg.Dispatcher.BatchSize = 20
	}
	if cfg.Dispatcher.MaxRetries <= 0 {
		cfg.Dispatcher.MaxRetries = 3
	}
	if len(cfg.Dispatcher.BackoffSchedule) == 0 {
		cfg.Dispatcher.BackoffSchedule = []time.Duration{
			time.Minute, 2 * time.Minute, 4 * time.Minute,
		}
	}
	if cfg.Queue.SweepInterval <= 0 {
		cfg.Queue.SweepInterval = 10 * time.Second
	}
	if cfg.Queue.SweepBatch <= 0 {
		cfg.Queue.SweepBatch = 50
	}
	if cfg.Queue.SendDelay <= 0 {
		cfg.Queue.SendDelay = 24 * time.Hour
	}
}
