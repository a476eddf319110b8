package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	AppKey         string        `mapstructure:"app_key"`
	AppSecret      string        `mapstructure:"app_secret"`
	SessionSecret  string        `mapstructure:"session_secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
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
	v.SetDefault("app_key", "classrelay")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("token_ttl", "4h")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("app_secret is required")
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.AppSecret
	}
	return &cfg, nil
}
