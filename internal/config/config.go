package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const EnvironmentProduction = "production"

const developmentSecret = "keyflow-development-secret"

type Config struct {
	Address     string `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	DatabaseURI string `env:"DATABASE_URI"`
	BotToken    string `env:"BOT_TOKEN"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	AdminIDs        []int64 `env:"ADMIN_IDS" envSeparator:","`
	SupportUsername string  `env:"SUPPORT_USERNAME"`
	WebAppURL       string  `env:"WEBAPP_URL"`

	SBPPhone     string `env:"SBP_PHONE"`
	SBPBank      string `env:"SBP_BANK"`
	SBPRecipient string `env:"SBP_RECIPIENT"`

	ReminderHour      int `env:"REMINDER_HOUR" envDefault:"10"`
	ReminderDaysAhead int `env:"REMINDER_DAYS_AHEAD" envDefault:"3"`

	ReferralBonus    decimal.Decimal `env:"REFERRAL_BONUS" envDefault:"100"`
	ReferralDiscount decimal.Decimal `env:"REFERRAL_DISCOUNT" envDefault:"50"`

	JWTSecret        string        `env:"JWT_SECRET"`
	TokenTTL         time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	StatusWebhookURL string        `env:"STATUS_WEBHOOK_URL"`

	BroadcastRate      float64       `env:"BROADCAST_RATE" envDefault:"20"`
	OperatorSessionTTL time.Duration `env:"OPERATOR_SESSION_TTL" envDefault:"15m"`
}

func NewConfig() (Config, error) {
	return newConfig(os.Args[1:])
}

func newConfig(args []string) (Config, error) {
	// A missing .env file is fine, the environment alone is enough.
	_ = godotenv.Load()

	config := Config{}

	if err := env.ParseWithOptions(&config, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(decimal.Decimal{}): func(value string) (interface{}, error) {
				return decimal.NewFromString(value)
			},
		},
	}); err != nil {
		return Config{}, err
	}

	if err := config.parseFlags(args); err != nil {
		return Config{}, err
	}

	if err := config.validateConfig(); err != nil {
		return Config{}, err
	}

	if config.JWTSecret == "" {
		config.JWTSecret = developmentSecret
	}

	return config, nil
}

// parseFlags lets command line flags override the environment.
func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("keyflow", flag.ContinueOnError)

	flags.StringVar(&c.Address, "a", c.Address, "Service address")
	flags.StringVar(&c.DatabaseURI, "d", c.DatabaseURI, "Database URI")
	flags.StringVar(&c.BotToken, "t", c.BotToken, "Telegram bot token")

	return flags.Parse(args)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func (c *Config) validateConfig() error {
	if _, err := url.ParseRequestURI(c.Address); err != nil {
		return fmt.Errorf("invalid run address: %w", err)
	}

	for _, URI := range []string{c.WebAppURL, c.StatusWebhookURL} {
		if URI == "" {
			continue
		}

		if _, err := url.ParseRequestURI(URI); err != nil {
			return err
		}
	}

	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("reminder hour %d is out of range", c.ReminderHour)
	}

	if c.ReminderDaysAhead < 0 {
		return fmt.Errorf("reminder days ahead %d is negative", c.ReminderDaysAhead)
	}

	if c.ReferralBonus.IsNegative() || c.ReferralDiscount.IsNegative() {
		return errors.New("referral amounts must not be negative")
	}

	if c.BroadcastRate <= 0 {
		return fmt.Errorf("broadcast rate %v must be positive", c.BroadcastRate)
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in production")
		}

		if c.DatabaseURI == "" {
			return errors.New("DATABASE_URI is required in production")
		}
	}

	return nil
}
