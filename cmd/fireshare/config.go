package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/service/lending"
	"github.com/nkiryanov/fireshare/internal/service/qrlogin"
	"github.com/nkiryanov/fireshare/internal/steam/webapi"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultSteamTimeout = 10 * time.Second
	defaultSteamRPS     = 5
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	// If empty data is kept in memory and lost on restart
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Steam web api address, timeout of a single call and allowed requests per second
	SteamAddr    string
	SteamTimeout time.Duration
	SteamRPS     float64

	// Lenders resolved at once when borrower view is built
	FanoutLimit int

	// How long QR login challenge is valid
	QRChallengeTTL time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		ListenAddr:     defaultListenAddr,
		Environment:    defaultEnvironment,
		SteamAddr:      webapi.DefaultAddr,
		SteamTimeout:   defaultSteamTimeout,
		SteamRPS:       defaultSteamRPS,
		FanoutLimit:    lending.DefaultFanoutLimit,
		QRChallengeTTL: qrlogin.DefaultChallengeTTL,
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
	setFloat := func(o *float64) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			*o = f
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"STEAM_API_ADDRESS": setString(&c.SteamAddr),
		"STEAM_TIMEOUT":     setDuration(&c.SteamTimeout),
		"STEAM_RPS":         setFloat(&c.SteamRPS),
		"FANOUT_LIMIT":      setInt(&c.FanoutLimit),
		"QR_CHALLENGE_TTL":  setDuration(&c.QRChallengeTTL),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("fireshare", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, keep data in memory if empty")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.SteamAddr, "steam-address", c.SteamAddr, "Steam web api address")
	fs.DurationVar(&c.SteamTimeout, "steam-timeout", c.SteamTimeout, "Timeout of a single Steam call")
	fs.Float64Var(&c.SteamRPS, "steam-rps", c.SteamRPS, "Steam requests per second")
	fs.IntVar(&c.FanoutLimit, "fanout-limit", c.FanoutLimit, "Lenders resolved at once")
	fs.DurationVar(&c.QRChallengeTTL, "qr-ttl", c.QRChallengeTTL, "QR login challenge lifetime")

	return fs.Parse(args)
}
