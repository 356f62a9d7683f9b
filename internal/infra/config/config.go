package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Australia/Sydney"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Discord struct {
		Token string `envconfig:"DISCORD_TOKEN"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Post struct {
		Hour        int `envconfig:"POST_HOUR" default:"21"`
		Minute      int `envconfig:"POST_MINUTE" default:"0"`
		SendTimeout int `envconfig:"POST_SEND_TIMEOUT_SEC" default:"30"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
