// Package config loads service configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the auction service configuration.
type Config struct {
	HTTPAddr string

	DB        DBConfig
	NATSURL   string
	RedisAddr string

	LeagueServiceURL string
	JWTSecret        string

	PresenceTTL time.Duration

	// Defaults fill in auction settings a create request leaves zero.
	Defaults AuctionDefaults
}

// AuctionDefaults are the operator-tunable auction settings, read from the
// optional YAML config file.
type AuctionDefaults struct {
	MinimumBid         int64 `yaml:"minimum_bid"`
	BidIncrement       int64 `yaml:"bid_increment"`
	StrictIncrement    bool  `yaml:"strict_increment"`
	BidTimerSec        int   `yaml:"bid_timer_sec"`
	BidTimerWarningSec int   `yaml:"bid_timer_warning_sec"`
}

type fileConfig struct {
	Auction AuctionDefaults `yaml:"auction"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the Postgres connection URL.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "teamauction"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		LeagueServiceURL: getEnv("LEAGUE_SERVICE_URL", "http://localhost:8081"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		PresenceTTL:      time.Duration(getEnvAsInt("PRESENCE_TTL_SEC", 60)) * time.Second,
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.Defaults = AuctionDefaults{
		MinimumBid:         1,
		BidIncrement:       1,
		BidTimerSec:        30,
		BidTimerWarningSec: 10,
	}
	path := getEnv("CONFIG_FILE", "config.yaml")
	if err := loadFile(path, &cfg.Defaults); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, defaults *AuctionDefaults) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if fc.Auction.MinimumBid > 0 {
		defaults.MinimumBid = fc.Auction.MinimumBid
	}
	if fc.Auction.BidIncrement > 0 {
		defaults.BidIncrement = fc.Auction.BidIncrement
	}
	if fc.Auction.BidTimerSec > 0 {
		defaults.BidTimerSec = fc.Auction.BidTimerSec
	}
	if fc.Auction.BidTimerWarningSec > 0 {
		defaults.BidTimerWarningSec = fc.Auction.BidTimerWarningSec
	}
	defaults.StrictIncrement = fc.Auction.StrictIncrement
	log.Info().Str("path", path).Msg("loaded config file")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
