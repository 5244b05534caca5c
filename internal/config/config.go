package config

import (
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string        `env:"ADDR,default=:8080"`
	DatabaseDSN     string        `env:"DB_DSN,required=true"`
	RedisAddr       string        `env:"REDIS_ADDR,default=localhost:6379"`
	JWTSecret       string        `env:"JWT_SECRET,required=true"`
	MediaRoot       string        `env:"MEDIA_ROOT,default=./media"`
	PublishTimeout  time.Duration `env:"PUBLISH_TIMEOUT,default=500ms"`
	MessagePageSize int           `env:"MESSAGE_PAGE_SIZE,default=50"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
}

// Load reads the configuration from the environment, with an optional
// .env file for local development.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
