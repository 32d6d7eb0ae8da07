package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jhunt/legisync/internal/model"
)

// Transport selection for the remote source.
const (
	TransportFTP  = "ftp"
	TransportHTTP = "http"
)

// Config holds all settings for the sync pipeline, resolved once from the
// environment. The hot loop never re-parses typed strings.
type Config struct {
	DatabaseURL string

	SessionCode string
	SessionName string
	BillTypes   []string

	SyncEnabled     bool
	MaxBillsPerSync int
	BatchSize       int
	BatchDelay      time.Duration
	DelayEvery      int

	Transport    string
	FTPAddr      string
	FTPUser      string
	FTPPassword  string
	HTTPBaseURL  string
	FetchTimeout time.Duration

	BindAddr string
}

// Load builds a Config from environment variables and validates it.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SessionCode:     getEnv("SESSION_CODE", ""),
		SessionName:     getEnv("SESSION_NAME", ""),
		BillTypes:       splitAndTrim(getEnv("BILL_TYPES", strings.Join(model.BillTypes, ","))),
		SyncEnabled:     getBool("SYNC_ENABLED", true),
		MaxBillsPerSync: getInt("MAX_BILLS_PER_SYNC", 0),
		BatchSize:       getInt("BATCH_SIZE", 20),
		BatchDelay:      time.Duration(getInt("BATCH_DELAY_MS", 1500)) * time.Millisecond,
		DelayEvery:      getInt("BATCH_DELAY_EVERY", 5),
		Transport:       getEnv("TRANSPORT", TransportFTP),
		FTPAddr:         getEnv("FTP_ADDR", "ftp.legis.state.tx.us:21"),
		FTPUser:         getEnv("FTP_USER", "anonymous"),
		FTPPassword:     getEnv("FTP_PASSWORD", "anonymous"),
		HTTPBaseURL:     getEnv("HTTP_BASE_URL", ""),
		FetchTimeout:    getDuration("FETCH_TIMEOUT", "30s"),
		BindAddr:        getEnv("BIND_ADDR", ":8080"),
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.DelayEvery <= 0 {
		return nil, fmt.Errorf("BATCH_DELAY_EVERY must be positive")
	}
	if c.MaxBillsPerSync < 0 {
		return nil, fmt.Errorf("MAX_BILLS_PER_SYNC cannot be negative")
	}
	if c.Transport != TransportFTP && c.Transport != TransportHTTP {
		return nil, fmt.Errorf("TRANSPORT must be %q or %q", TransportFTP, TransportHTTP)
	}
	if c.Transport == TransportHTTP && c.HTTPBaseURL == "" {
		return nil, fmt.Errorf("HTTP_BASE_URL is required when TRANSPORT=http")
	}
	if len(c.BillTypes) == 0 {
		return nil, fmt.Errorf("BILL_TYPES must contain at least one type")
	}
	for _, t := range c.BillTypes {
		if !model.ValidBillType(t) {
			return nil, fmt.Errorf("BILL_TYPES contains unrecognized type %q", t)
		}
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		d, err = time.ParseDuration(fallback)
		if err != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
		}
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToUpper(strings.TrimSpace(part))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
