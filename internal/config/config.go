// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/pagestitch/internal/browser"
)

// Config holds every tunable of the service
type Config struct {
	ListenAddr string

	ChromeMode     browser.Mode
	ChromeURL      string
	ChromeHeadless bool
	ViewportWidth  int
	ViewportHeight int

	CaptureTimeout  time.Duration
	CaptureThrottle time.Duration
	SettleDelay     time.Duration
	JPEGQuality     int
	MaxConcurrent   int

	RateLimitPerHour int
	RateLimitBurst   int

	HistoryDir       string
	DeliveryTimeout  time.Duration
	DeliveryAttempts int
}

// Load reads .env when present, then the environment
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		ListenAddr:     r.str("LISTEN_ADDR", ":8080"),
		ChromeURL:      r.str("CHROME_URL", ""),
		ChromeHeadless: r.boolean("CHROME_HEADLESS", true),
		ViewportWidth:  r.integer("VIEWPORT_WIDTH", 1280),
		ViewportHeight: r.integer("VIEWPORT_HEIGHT", 800),

		CaptureTimeout:  r.duration("CAPTURE_TIMEOUT", 60*time.Second),
		CaptureThrottle: r.duration("CAPTURE_THROTTLE", 650*time.Millisecond),
		SettleDelay:     r.duration("SETTLE_DELAY", 700*time.Millisecond),
		JPEGQuality:     r.integer("JPEG_QUALITY", 85),
		MaxConcurrent:   r.integer("MAX_CONCURRENT_CAPTURES", 4),

		RateLimitPerHour: r.integer("RATE_LIMIT_PER_HOUR", 100),
		RateLimitBurst:   r.integer("RATE_LIMIT_BURST", 10),

		HistoryDir:       r.str("HISTORY_DIR", "./storage/history"),
		DeliveryTimeout:  r.duration("DELIVERY_TIMEOUT", 15*time.Second),
		DeliveryAttempts: r.integer("DELIVERY_ATTEMPTS", 3),
	}

	mode, err := browser.ParseMode(r.str("CHROME_MODE", string(browser.ModeLocal)))
	if err != nil {
		r.fail("CHROME_MODE", err)
	}
	cfg.ChromeMode = mode

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c Config) Validate() error {
	switch {
	case c.ViewportWidth <= 0 || c.ViewportHeight <= 0:
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	case c.CaptureTimeout <= 0:
		return fmt.Errorf("CAPTURE_TIMEOUT must be positive, got %s", c.CaptureTimeout)
	case c.CaptureThrottle < 0 || c.SettleDelay < 0:
		return fmt.Errorf("CAPTURE_THROTTLE and SETTLE_DELAY cannot be negative")
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("MAX_CONCURRENT_CAPTURES must be positive, got %d", c.MaxConcurrent)
	case c.RateLimitPerHour <= 0 || c.RateLimitBurst <= 0:
		return fmt.Errorf("rate limits must be positive")
	case c.DeliveryAttempts <= 0 || c.DeliveryTimeout <= 0:
		return fmt.Errorf("delivery attempts and timeout must be positive")
	case c.ChromeMode == browser.ModeRemote && c.ChromeURL == "":
		return fmt.Errorf("CHROME_URL is required when CHROME_MODE=remote")
	}
	return nil
}

// reader keeps the first parse error
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *reader) str(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}
