package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries the server's tunables.
type Config struct {
	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwtSecret"`
		TokenTTL  time.Duration `mapstructure:"tokenTTL"`
	} `mapstructure:"auth"`
	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"maxSizeMB"`
		MaxBackups int    `mapstructure:"maxBackups"`
		MaxAgeDays int    `mapstructure:"maxAgeDays"`
	} `mapstructure:"log"`
	WS struct {
		ReadLimit int64 `mapstructure:"readLimit"`
	} `mapstructure:"ws"`
}

// LoadConfig reads config.yaml from the working directory, then applies
// GRIDSPACE_* environment overrides on top of the defaults. A missing file
// is fine; defaults carry a runnable server.
func LoadConfig(fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("auth.jwtSecret", "dev-secret-change-me")
	v.SetDefault("auth.tokenTTL", "24h")
	v.SetDefault("log.file", "gridspace.log")
	v.SetDefault("log.maxSizeMB", 10)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAgeDays", 7)
	v.SetDefault("ws.readLimit", 1<<20)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GRIDSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
