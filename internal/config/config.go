package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string

	RetailCRMURL      string
	RetailCRMAPIKey   string
	RetailCRMTimezone *time.Location
	RetailCRMTimeout  time.Duration
	RetailCRMPageSize int

	DatabaseURL  string
	RedisURL     string
	CacheTTL     time.Duration
	SyncSchedule string

	JWTSecret        string
	JWTExpiry        time.Duration
	ClientID         string
	ClientSecretHash string

	LogLevel    string
	LogEncoding string
}

// AuthEnabled reports whether /tools requires a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// MirrorEnabled reports whether a database is configured for the mirror.
func (c *Config) MirrorEnabled() bool {
	return c.DatabaseURL != ""
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("server_port", "8080")
	v.SetDefault("retailcrm_url", "https://demo.retailcrm.ru")
	v.SetDefault("retailcrm_timezone", "Europe/Moscow")
	v.SetDefault("retailcrm_timeout", "30s")
	v.SetDefault("retailcrm_page_size", 100)
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("sync_schedule", "")
	v.SetDefault("jwt_expiry", "24h")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "json")

	timeout, err := durationValue(v, "retailcrm_timeout")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationValue(v, "cache_ttl")
	if err != nil {
		return nil, err
	}
	expiry, err := durationValue(v, "jwt_expiry")
	if err != nil {
		return nil, err
	}

	tzName := v.GetString("retailcrm_timezone")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid RETAILCRM_TIMEZONE %q: %w", tzName, err)
	}

	cfg := &Config{
		ServerPort:        v.GetString("server_port"),
		RetailCRMURL:      v.GetString("retailcrm_url"),
		RetailCRMAPIKey:   v.GetString("retailcrm_api_key"),
		RetailCRMTimezone: tz,
		RetailCRMTimeout:  timeout,
		RetailCRMPageSize: v.GetInt("retailcrm_page_size"),
		DatabaseURL:       v.GetString("database_url"),
		RedisURL:          v.GetString("redis_url"),
		CacheTTL:          cacheTTL,
		SyncSchedule:      v.GetString("sync_schedule"),
		JWTSecret:         v.GetString("jwt_secret"),
		JWTExpiry:         expiry,
		ClientID:          v.GetString("client_id"),
		ClientSecretHash:  v.GetString("client_secret_hash"),
		LogLevel:          v.GetString("log_level"),
		LogEncoding:       v.GetString("log_encoding"),
	}

	// Validate required fields
	if cfg.RetailCRMAPIKey == "" {
		return nil, errors.New("RETAILCRM_API_KEY is required")
	}
	if cfg.RetailCRMPageSize < 1 || cfg.RetailCRMPageSize > 100 {
		return nil, errors.New("RETAILCRM_PAGE_SIZE must be between 1 and 100")
	}
	if cfg.AuthEnabled() && (cfg.ClientID == "" || cfg.ClientSecretHash == "") {
		return nil, errors.New("CLIENT_ID and CLIENT_SECRET_HASH are required when JWT_SECRET is set")
	}

	return cfg, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %q", strings.ToUpper(key), raw)
	}
	return d, nil
}
