package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by UPDRAFT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("UPDRAFT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func intEnv(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func durationEnvSeconds(key string, def time.Duration) time.Duration {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// FeedURL is the base URL of the external update feed.
func FeedURL() string {
	u := os.Getenv("UPDATE_FEED_URL")
	if u == "" {
		return "https://updates.updraft.network"
	}
	return u
}

// UpdateChannels returns the release channels polled on every catalog
// refresh. Comma-separated; defaults to all known channels.
func UpdateChannels() []string {
	raw := os.Getenv("UPDATE_CHANNELS")
	if raw == "" {
		return []string{"stable", "beta", "alpha", "nightly"}
	}
	var channels []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			channels = append(channels, c)
		}
	}
	return channels
}

// CatalogInterval is the delay between catalog refresh passes.
func CatalogInterval() time.Duration {
	return durationEnvSeconds("CATALOG_INTERVAL_SECONDS", 300*time.Second)
}

// CatalogErrorBackoff is the delay after a refresh pass that errored.
func CatalogErrorBackoff() time.Duration {
	return durationEnvSeconds("CATALOG_ERROR_BACKOFF_SECONDS", 900*time.Second)
}

// HealthWatchInterval is the delay between post-update health sweeps.
func HealthWatchInterval() time.Duration {
	return durationEnvSeconds("HEALTH_WATCH_INTERVAL_SECONDS", 60*time.Second)
}

// HealthWatchErrorBackoff is the delay after a health sweep that errored.
func HealthWatchErrorBackoff() time.Duration {
	return durationEnvSeconds("HEALTH_WATCH_ERROR_BACKOFF_SECONDS", 300*time.Second)
}

// MaintenanceWindowStart / MaintenanceWindowEnd bound the daily HH:MM range
// during which non-critical updates may execute. The window may wrap past
// midnight. Empty values disable the gate.
func MaintenanceWindowStart() string {
	s := os.Getenv("MAINTENANCE_WINDOW_START")
	if s == "" {
		return "02:00"
	}
	return s
}

func MaintenanceWindowEnd() string {
	s := os.Getenv("MAINTENANCE_WINDOW_END")
	if s == "" {
		return "04:00"
	}
	return s
}

// ArtifactDir is the local content-addressable cache for downloaded
// update packages.
func ArtifactDir() string {
	d := os.Getenv("ARTIFACT_DIR")
	if d == "" {
		return "artifacts"
	}
	return d
}

// AgentOnlineTTL is how long after the last heartbeat an agent is still
// considered online.
func AgentOnlineTTL() time.Duration {
	return durationEnvSeconds("AGENT_ONLINE_TTL_SECONDS", 90*time.Second)
}

// BackupWaitTimeout bounds the wait for a confirmed agent backup.
func BackupWaitTimeout() time.Duration {
	return durationEnvSeconds("BACKUP_WAIT_TIMEOUT_SECONDS", 60*time.Second)
}

// OnlineWaitTimeout bounds the wait for an agent to return online after a
// restart.
func OnlineWaitTimeout() time.Duration {
	return durationEnvSeconds("ONLINE_WAIT_TIMEOUT_SECONDS", 120*time.Second)
}

// VerifyWaitTimeout bounds the wait for a version verification response.
func VerifyWaitTimeout() time.Duration {
	return durationEnvSeconds("VERIFY_WAIT_TIMEOUT_SECONDS", 30*time.Second)
}

func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 50
	}
	return rps
}

func RateLimitBurst() int {
	burst := intEnv("RATE_LIMIT_BURST", 100)
	if burst <= 0 {
		return 100
	}
	return burst
}
