package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// APIKeyConfig describes a single API key + secret pair accepted by the
// gateway.
type APIKeyConfig struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Config captures runtime configuration for the booking gateway service.
type Config struct {
	ListenAddress        string
	ChainID              uint64
	AdminAddress         string
	LedgerPath           string
	DatabasePath         string
	SignerKeystorePath   string
	SignerPassphrase     string
	AllowedTimestampSkew time.Duration
	APIKeys              []APIKeyConfig
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:        getenvDefault("BOOKING_GATEWAY_LISTEN", ":8082"),
		AdminAddress:         strings.TrimSpace(os.Getenv("BOOKING_GATEWAY_ADMIN")),
		LedgerPath:           getenvDefault("BOOKING_GATEWAY_LEDGER_PATH", "booking-ledger.db"),
		DatabasePath:         getenvDefault("BOOKING_GATEWAY_DB_PATH", "booking-gateway.db"),
		SignerKeystorePath:   strings.TrimSpace(os.Getenv("BOOKING_GATEWAY_SIGNER_KEYSTORE")),
		SignerPassphrase:     os.Getenv("BOOKING_GATEWAY_SIGNER_PASSPHRASE"),
		AllowedTimestampSkew: 2 * time.Minute,
		ChainID:              1,
	}

	if raw := strings.TrimSpace(os.Getenv("BOOKING_GATEWAY_CHAIN_ID")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return Config{}, fmt.Errorf("parse BOOKING_GATEWAY_CHAIN_ID: %q", raw)
		}
		cfg.ChainID = id
	}

	if skew := strings.TrimSpace(os.Getenv("BOOKING_GATEWAY_TIMESTAMP_SKEW")); skew != "" {
		dur, err := time.ParseDuration(skew)
		if err != nil {
			return Config{}, fmt.Errorf("parse BOOKING_GATEWAY_TIMESTAMP_SKEW: %w", err)
		}
		cfg.AllowedTimestampSkew = dur
	}

	if raw := strings.TrimSpace(os.Getenv("BOOKING_GATEWAY_API_KEYS")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.APIKeys); err != nil {
			return Config{}, fmt.Errorf("parse BOOKING_GATEWAY_API_KEYS: %w", err)
		}
	}
	for i, key := range cfg.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return Config{}, fmt.Errorf("BOOKING_GATEWAY_API_KEYS entry %d incomplete", i)
		}
	}
	if len(cfg.APIKeys) == 0 {
		return Config{}, errors.New("BOOKING_GATEWAY_API_KEYS is required")
	}
	if cfg.AdminAddress == "" {
		return Config{}, errors.New("BOOKING_GATEWAY_ADMIN is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
