package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	GatewayBaseURL string
	GatewayWSURL   string

	BotPrefix string

	RedisURL    string
	DatabaseURL string

	// HouseUserID is the system-owned account that receives minted tax.
	HouseUserID string

	TaxRate        float64
	SessionTimeout time.Duration
	InventoryCap   int

	AllowedGuilds []string

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BotPrefix:      "/",
		TaxRate:        0.10,
		SessionTimeout: 60 * time.Second,
		InventoryCap:   50,
	}

	cfg.GatewayBaseURL = strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL"))
	cfg.GatewayWSURL = strings.TrimSpace(os.Getenv("GATEWAY_WS_URL"))
	if v := strings.TrimSpace(os.Getenv("BOT_PREFIX")); v != "" {
		cfg.BotPrefix = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.HouseUserID = strings.TrimSpace(os.Getenv("HOUSE_USER_ID"))

	if v := strings.TrimSpace(os.Getenv("TAX_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.TaxRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("INVENTORY_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InventoryCap = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_GUILDS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedGuilds = append(cfg.AllowedGuilds, s)
			}
		}
	}

	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayWSURL == "" {
		return nil, errors.New("GATEWAY_WS_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.HouseUserID == "" {
		return nil, errors.New("HOUSE_USER_ID is required")
	}

	return cfg, nil
}
