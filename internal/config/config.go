package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agenciamidas/capi-gateway/internal/domain"
)

// Config holds all configuration for the application. Loaded once at startup;
// read-only afterwards.
type Config struct {
	Port            string
	SharedSecret    string
	FluxlabsSecret  string
	VerifyToken     string
	Pixels          []domain.Pixel
	AllowedEvents   []string
	DepositAliases  []string
	SpecialReferrer string
	DropRedeposits  bool
	DefaultCurrency string
	RedisURL        string
	DatabaseURL     string
	CAPIBaseURL     string
	TestEventCode   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		SharedSecret:    getEnv("SHARED_SECRET", ""),
		FluxlabsSecret:  getEnv("FLUXLABS_SECRET", ""),
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		AllowedEvents:   splitList(getEnv("ALLOWED_EVENTS", "")),
		DepositAliases:  splitList(getEnv("EXTRA_DEPOSIT_ALIASES", "")),
		SpecialReferrer: getEnv("SPECIAL_REFERRER", "agenciamidas"),
		DropRedeposits:  getEnvBool("DROP_REDEPOSITS", true),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "BRL"),
		RedisURL:        getEnv("REDIS_URL", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		CAPIBaseURL:     getEnv("CAPI_BASE_URL", "https://graph.facebook.com/v18.0"),
		TestEventCode:   getEnv("TEST_EVENT_CODE", ""),
	}

	pixels, err := loadPixels()
	if err != nil {
		return nil, err
	}
	if len(pixels) == 0 {
		return nil, fmt.Errorf("no pixels configured: set PIXELS_JSON or PIXEL_ID/ACCESS_TOKEN")
	}
	cfg.Pixels = pixels

	return cfg, nil
}

// loadPixels reads the destination list from PIXELS_JSON (a JSON array) or
// falls back to indexed PIXEL_ID/ACCESS_TOKEN variables (PIXEL_ID,
// PIXEL_ID_2 .. PIXEL_ID_9).
func loadPixels() ([]domain.Pixel, error) {
	if raw := os.Getenv("PIXELS_JSON"); raw != "" {
		var pixels []domain.Pixel
		if err := json.Unmarshal([]byte(raw), &pixels); err != nil {
			return nil, fmt.Errorf("parsing PIXELS_JSON: %w", err)
		}
		for i, p := range pixels {
			if p.ID == "" || p.AccessToken == "" {
				return nil, fmt.Errorf("PIXELS_JSON entry %d: id and access_token are required", i)
			}
		}
		return pixels, nil
	}

	var pixels []domain.Pixel
	for i := 1; i <= 9; i++ {
		suffix := ""
		if i > 1 {
			suffix = "_" + strconv.Itoa(i)
		}
		id := os.Getenv("PIXEL_ID" + suffix)
		token := os.Getenv("ACCESS_TOKEN" + suffix)
		if id == "" && token == "" {
			continue
		}
		if id == "" || token == "" {
			return nil, fmt.Errorf("PIXEL_ID%s and ACCESS_TOKEN%s must both be set", suffix, suffix)
		}
		pixels = append(pixels, domain.Pixel{
			ID:              id,
			AccessToken:     token,
			Name:            os.Getenv("PIXEL_NAME" + suffix),
			FluxlabsEnabled: parseBool(os.Getenv("PIXEL_FLUXLABS"+suffix), false),
		})
	}
	return pixels, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	return parseBool(os.Getenv(key), fallback)
}

func parseBool(val string, fallback bool) bool {
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
