// Package config provides centralized default values for RevLens
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Upstream analytics API
	UpstreamBaseURL     string
	UpstreamAPIPrefix   string
	UpstreamV2Prefix    string
	UpstreamHTTPTimeout time.Duration

	// Collection freshness
	CollectionTTL time.Duration

	// Orchestration safety timeouts
	StageListTimeout time.Duration
	DealFetchTimeout time.Duration

	// Derived fetch staggering
	InsightStaggerDelay  time.Duration
	ActivityStaggerDelay time.Duration
	SignalStaggerDelay   time.Duration

	// Signals fan-out batching
	SignalBatchSize  int
	SignalBatchPause time.Duration

	// Durable local storage
	LocalStorePath string

	// Operator auth (admin/refresh surface)
	OperatorPasswordHash string
	JWTSecret            string
	TokenLifetime        time.Duration

	// Transcript Q&A
	AAIAPIKey  string
	AAITimeout time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Upstream analytics API
	UpstreamBaseURL = getEnvString("UPSTREAM_BASE_URL", "http://localhost:9000")
	UpstreamAPIPrefix = getEnvString("UPSTREAM_API_PREFIX", "/api")
	UpstreamV2Prefix = getEnvString("UPSTREAM_V2_PREFIX", "/api/v2")
	UpstreamHTTPTimeout = getEnvDuration("UPSTREAM_HTTP_TIMEOUT", 30*time.Second)

	// Collection freshness window. Cached collections older than this are
	// stale and must be refetched before being trusted.
	CollectionTTL = time.Duration(getEnvInt("COLLECTION_TTL_SECONDS", 300)) * time.Second

	// Safety timeouts per fetching state
	StageListTimeout = getEnvDuration("STAGE_LIST_TIMEOUT", 10*time.Second)
	DealFetchTimeout = getEnvDuration("DEAL_FETCH_TIMEOUT", 15*time.Second)

	// Stagger delays before the three derived fetches start
	InsightStaggerDelay = getEnvDuration("INSIGHT_STAGGER_DELAY", 250*time.Millisecond)
	ActivityStaggerDelay = getEnvDuration("ACTIVITY_STAGGER_DELAY", 1*time.Second)
	SignalStaggerDelay = getEnvDuration("SIGNAL_STAGGER_DELAY", 2*time.Second)

	// Signals fan-out batching. Backpressure protecting the upstream, not a
	// performance optimization.
	SignalBatchSize = getEnvInt("SIGNAL_BATCH_SIZE", 10)
	SignalBatchPause = getEnvDuration("SIGNAL_BATCH_PAUSE", 500*time.Millisecond)

	// Durable local storage (sqlite file path or libsql:// URL)
	LocalStorePath = getEnvString("LOCAL_STORE_PATH", "revlens.db")

	// Operator auth
	OperatorPasswordHash = getEnvString("OPERATOR_PASSWORD_HASH", "")
	JWTSecret = getEnvString("JWT_SECRET", "")
	TokenLifetime = getEnvDuration("TOKEN_LIFETIME", 12*time.Hour)

	// Transcript Q&A
	AAIAPIKey = getEnvString("AAI_API_KEY", "")
	AAITimeout = getEnvDuration("AAI_TIMEOUT", 30*time.Second)
}
