package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/numrent/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultSMSActivateAddr = "https://api.sms-activate.ae/stubs/handler_api.php"
	defaultFiveSimAddr     = "https://5sim.net/v1"
	defaultSweepInterval   = time.Minute
	defaultSweepBatchSize  = 500
	defaultPollInterval    = 10 * time.Second
	defaultActivationTTL   = 20 * time.Minute
	defaultRentalTTL       = 4 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Signs JWT access tokens
	SecretKey string

	// Shared secret of the payment provider; webhooks are rejected when empty
	WebhookSecret string

	// Environment
	Environment string

	// Price catalog. Required to take orders
	RedisAddr string

	// Optional transports. Skipped when empty
	NatsURL      string
	KafkaBrokers []string

	// Number providers. A provider without API key is not registered
	SMSActivateAddr   string
	SMSActivateAPIKey string
	FiveSimAddr       string
	FiveSimAPIKey     string

	SweepInterval  time.Duration
	SweepBatchSize int
	PollInterval   time.Duration
	ActivationTTL  time.Duration
	RentalTTL      time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		SMSActivateAddr: defaultSMSActivateAddr,
		FiveSimAddr:     defaultFiveSimAddr,
		SweepInterval:   defaultSweepInterval,
		SweepBatchSize:  defaultSweepBatchSize,
		PollInterval:    defaultPollInterval,
		ActivationTTL:   defaultActivationTTL,
		RentalTTL:       defaultRentalTTL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = splitList(value)
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":         setString(&c.ListenAddr),
		"DATABASE_URI":        setString(&c.DatabaseDSN),
		"SECRET_KEY":          setString(&c.SecretKey),
		"WEBHOOK_SECRET":      setString(&c.WebhookSecret),
		"LOG_LEVEL":           setString(&c.LogLevel),
		"ENVIRONMENT":         setString(&c.Environment),
		"REDIS_ADDRESS":       setString(&c.RedisAddr),
		"NATS_URL":            setString(&c.NatsURL),
		"KAFKA_BROKERS":       setList(&c.KafkaBrokers),
		"SMSACTIVATE_URL":     setString(&c.SMSActivateAddr),
		"SMSACTIVATE_API_KEY": setString(&c.SMSActivateAPIKey),
		"FIVESIM_URL":         setString(&c.FiveSimAddr),
		"FIVESIM_API_KEY":     setString(&c.FiveSimAPIKey),
		"SWEEP_INTERVAL":      setDuration(&c.SweepInterval),
		"SWEEP_BATCH_SIZE":    setInt(&c.SweepBatchSize),
		"POLL_INTERVAL":       setDuration(&c.PollInterval),
		"ACTIVATION_TTL":      setDuration(&c.ActivationTTL),
		"RENTAL_TTL":          setDuration(&c.RentalTTL),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("numrent", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.WebhookSecret, "webhook-secret", "w", c.WebhookSecret, "Payment webhook secret")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address of the price catalog")
	fs.StringVar(&c.NatsURL, "nats", c.NatsURL, "NATS url to consume provider signals from")
	fs.StringSliceVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Kafka brokers to publish settlements to")
	fs.StringVar(&c.SMSActivateAddr, "smsactivate-url", c.SMSActivateAddr, "SMS-Activate API address")
	fs.StringVar(&c.SMSActivateAPIKey, "smsactivate-api-key", c.SMSActivateAPIKey, "SMS-Activate API key")
	fs.StringVar(&c.FiveSimAddr, "fivesim-url", c.FiveSimAddr, "5sim API address")
	fs.StringVar(&c.FiveSimAPIKey, "fivesim-api-key", c.FiveSimAPIKey, "5sim API key")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expiry sweeper interval")
	fs.IntVar(&c.SweepBatchSize, "sweep-batch-size", c.SweepBatchSize, "Orders released per sweep")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Provider polling interval")
	fs.DurationVar(&c.ActivationTTL, "activation-ttl", c.ActivationTTL, "How long activation waits for code")
	fs.DurationVar(&c.RentalTTL, "rental-ttl", c.RentalTTL, "Rental duration")

	return fs.Parse(args)
}

// Validate checks options the service can't start without
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("webhook secret is required"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis address is required"))
	}
	if c.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("sweep batch size must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"sweep interval": c.SweepInterval,
		"poll interval":  c.PollInterval,
		"activation ttl": c.ActivationTTL,
		"rental ttl":     c.RentalTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
