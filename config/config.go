package config

import (
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

type AppConfig struct {
	PollingInterval      int    `env:"POLLING_INTERVAL" envDefault:"60"`
	MaxConcurrentWorkers int    `env:"MAX_CONCURRENT_WORKERS" envDefault:"10"`
	DispatchInterval     int    `env:"DISPATCH_INTERVAL" envDefault:"900"`
	TrainingDataPath     string `env:"TRAINING_DATA_PATH" envDefault:"training_data.jsonl"`
}

// MailAccountConfig is one mailbox of the fleet. Accounts with an empty email
// are treated as not configured.
type MailAccountConfig struct {
	Email           string
	Password        string
	RateLimitPerDay int
}

type AccountsConfig struct {
	Account1Email    string `env:"ACCOUNT_1_EMAIL"`
	Account1Password string `env:"ACCOUNT_1_PASSWORD"`
	Account1Rate     int    `env:"ACCOUNT_1_RATE_LIMIT_PER_DAY" envDefault:"500"`
	Account2Email    string `env:"ACCOUNT_2_EMAIL"`
	Account2Password string `env:"ACCOUNT_2_PASSWORD"`
	Account2Rate     int    `env:"ACCOUNT_2_RATE_LIMIT_PER_DAY" envDefault:"500"`
	Account3Email    string `env:"ACCOUNT_3_EMAIL"`
	Account3Password string `env:"ACCOUNT_3_PASSWORD"`
	Account3Rate     int    `env:"ACCOUNT_3_RATE_LIMIT_PER_DAY" envDefault:"500"`
}

// All returns the configured accounts in declaration order.
func (c *AccountsConfig) All() []MailAccountConfig {
	candidates := []MailAccountConfig{
		{Email: c.Account1Email, Password: c.Account1Password, RateLimitPerDay: c.Account1Rate},
		{Email: c.Account2Email, Password: c.Account2Password, RateLimitPerDay: c.Account2Rate},
		{Email: c.Account3Email, Password: c.Account3Password, RateLimitPerDay: c.Account3Rate},
	}
	accounts := make([]MailAccountConfig, 0, len(candidates))
	for _, a := range candidates {
		if a.Email != "" {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

// PasswordFor resolves the app password for an account email.
func (c *AccountsConfig) PasswordFor(email string) string {
	for _, a := range c.All() {
		if a.Email == email {
			return a.Password
		}
	}
	return ""
}

type IMAPConfig struct {
	Server string `env:"IMAP_SERVER" envDefault:"imap.gmail.com"`
	Port   int    `env:"IMAP_PORT" envDefault:"993"`
}

type SMTPConfig struct {
	Server string `env:"SMTP_SERVER" envDefault:"smtp.gmail.com"`
	Port   int    `env:"SMTP_PORT" envDefault:"587"`
}

type DatabaseConfig struct {
	URL             string `env:"DATABASE_URL,required"`
	MaxConn         int    `env:"DATABASE_MAX_CONN" envDefault:"10"`
	MaxIdleConn     int    `env:"DATABASE_MAX_IDLE_CONN" envDefault:"2"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"60"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type GroqConfig struct {
	APIKey string `env:"GROQ_API_KEY,required"`
	Model  string `env:"GROQ_MODEL" envDefault:"mixtral-8x7b-32768"`
	URL    string `env:"GROQ_API_URL" envDefault:"https://api.groq.com/openai/v1/chat/completions"`
}

type Config struct {
	AppConfig      *AppConfig
	AccountsConfig *AccountsConfig
	IMAPConfig     *IMAPConfig
	SMTPConfig     *SMTPConfig
	DatabaseConfig *DatabaseConfig
	RedisConfig    *RedisConfig
	GroqConfig     *GroqConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}
