package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		AccountsConfig: &AccountsConfig{},
		IMAPConfig:     &IMAPConfig{},
		SMTPConfig:     &SMTPConfig{},
		DatabaseConfig: &DatabaseConfig{},
		RedisConfig:    &RedisConfig{},
		GroqConfig:     &GroqConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading followup config")
	}

	if len(config.AccountsConfig.All()) == 0 {
		return nil, errors.New("no mail accounts configured, set ACCOUNT_1_EMAIL at minimum")
	}

	return config, nil
}
