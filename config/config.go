package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/internal/cron"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/services/calendar"
	"github.com/replypilot/replypilot/services/llm"
	"github.com/replypilot/replypilot/services/mailer"
)

type AppConfig struct {
	APIPort       string   `env:"PORT" envDefault:"8080"`
	RabbitMQURL   string   `env:"RABBITMQ_URL"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	DefaultQuota  int      `env:"DEFAULT_QUOTA" envDefault:"100"`
	EncryptionKey string   `env:"ENCRYPTION_KEY,required"`
}

type JWTConfig struct {
	Secret          string `env:"JWT_SECRET,required"`
	ExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
}

type PostgresConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"require"`
}

func (c *PostgresConfig) DatabaseConfig() *database.DatabaseConfig {
	return &database.DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		DBName:          c.DBName,
		Password:        c.Password,
		MaxConn:         c.MaxConn,
		MaxIdleConn:     c.MaxIdleConn,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
		SSLMode:         c.SSLMode,
	}
}

type Config struct {
	App      AppConfig
	JWT      JWTConfig
	Postgres PostgresConfig
	Logger   logger.Config
	Jaeger   tracing.JaegerConfig
	LLM      llm.Config
	Mailer   mailer.Config
	Calendar calendar.ProviderConfig
	Meeting  calendar.Config
	Cron     cron.Config
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return &cfg, nil
}
