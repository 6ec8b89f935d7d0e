package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	RatePerMinute     int64         `mapstructure:"rate_per_minute"`
	MinBalanceMinutes int64         `mapstructure:"min_balance_minutes"`
	EarnShare         float64       `mapstructure:"earn_share"`
	MessageThrottle   time.Duration `mapstructure:"message_throttle"`
	MaxMessageLen     int           `mapstructure:"max_message_len"`

	Database DatabaseConfig `mapstructure:"database"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("rate_per_minute", 10)
	v.SetDefault("min_balance_minutes", 2)
	v.SetDefault("earn_share", 0.80)
	v.SetDefault("message_throttle", "500ms")
	v.SetDefault("max_message_len", 1000)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("amqp.exchange", "connecto.events")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Rate: %d/min\n", cfg.Mode, cfg.Port, cfg.RatePerMinute)
	return &cfg, nil
}
