package auth

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

const defaultTokenTTL = 24 * time.Hour

type Config struct {
	SigningKey string        `mapstructure:"SIGNING_KEY"`
	TokenTTL   time.Duration `mapstructure:"TOKEN_TTL"`
	// AuthAddr - адрес внешнего сервиса аутентификации (gRPC).
	// Если пусто, токены проверяются локально.
	AuthAddr string `mapstructure:"AUTH"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("SIGNING_KEY", "AUTH_SIGNING_KEY")
	v.BindEnv("TOKEN_TTL", "AUTH_TOKEN_TTL")
	v.BindEnv("AUTH", "AUTH_ADDR")

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: auth config %s not loaded, using environment: %v", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("SIGNING_KEY is required")
	}

	return &cfg, nil
}
