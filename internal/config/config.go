package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg := &Configuration{viper: v}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	// Set up environment variable mapping
	v.SetEnvPrefix("MEETSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	v.BindEnv("backend.api_key", "BACKEND_API_KEY")
	v.BindEnv("backend.request_timeout_ms", "BACKEND_REQUEST_TIMEOUT_MS")
	v.BindEnv("poll.interval_ms", "POLL_INTERVAL_MS")
	v.BindEnv("poll.max_attempts", "POLL_MAX_ATTEMPTS")
	v.BindEnv("poll.backstop_min_chars", "POLL_BACKSTOP_MIN_CHARS")
	v.BindEnv("reconstruct.merge_gap_sec", "RECONSTRUCT_MERGE_GAP_SEC")
	v.BindEnv("reconstruct.min_ratio", "RECONSTRUCT_MIN_RATIO")
	v.BindEnv("reconstruct.max_ratio", "RECONSTRUCT_MAX_RATIO")
	v.BindEnv("store.db_path", "STORE_DB_PATH")
	v.BindEnv("metrics.listen_addr", "METRICS_LISTEN_ADDR")
	v.BindEnv("output.path", "OUTPUT_PATH")
	v.BindEnv("jobs.ids", "JOB_IDS")
	v.BindEnv("debug_mode", "DEBUG_MODE")

	cfg := &Configuration{viper: v}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers the default value for every configuration key
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8090")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.request_timeout_ms", 15000)
	v.SetDefault("poll.interval_ms", 5000)
	v.SetDefault("poll.max_attempts", 360)
	v.SetDefault("poll.backstop_min_chars", 50)
	v.SetDefault("reconstruct.merge_gap_sec", 1.0)
	v.SetDefault("reconstruct.min_ratio", 0.6)
	v.SetDefault("reconstruct.max_ratio", 1.4)
	v.SetDefault("store.db_path", "./data/meetscribe.db")
	v.SetDefault("metrics.listen_addr", ":9102")
	v.SetDefault("output.path", "./logs/transcripts.jsonl")
	v.SetDefault("jobs.ids", []string{})
	v.SetDefault("debug_mode", false)
}

// validate rejects configurations that would make the poller misbehave
func (c *Configuration) validate() error {
	intervalMS := c.viper.GetInt("poll.interval_ms")
	if intervalMS < 500 || intervalMS > 60000 {
		return fmt.Errorf("poll interval must be between 500 and 60000 milliseconds, got %d", intervalMS)
	}

	maxAttempts := c.viper.GetInt("poll.max_attempts")
	if maxAttempts < 1 {
		return fmt.Errorf("poll max attempts must be at least 1, got %d", maxAttempts)
	}

	minRatio := c.viper.GetFloat64("reconstruct.min_ratio")
	maxRatio := c.viper.GetFloat64("reconstruct.max_ratio")
	if minRatio <= 0 || minRatio > maxRatio {
		return fmt.Errorf("validation ratio bounds must satisfy 0 < min <= max, got min=%.2f max=%.2f", minRatio, maxRatio)
	}

	return nil
}

// GetBackendBaseURL returns the transcription backend base URL
func (c *Configuration) GetBackendBaseURL() string {
	return c.viper.GetString("backend.base_url")
}

// GetBackendAPIKey returns the bearer token for backend requests, empty when
// the backend is unauthenticated
func (c *Configuration) GetBackendAPIKey() string {
	return c.viper.GetString("backend.api_key")
}

// GetBackendRequestTimeout returns the per-request timeout for status queries
func (c *Configuration) GetBackendRequestTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("backend.request_timeout_ms")) * time.Millisecond
}

// GetPollInterval returns the delay between consecutive status queries
func (c *Configuration) GetPollInterval() time.Duration {
	return time.Duration(c.viper.GetInt("poll.interval_ms")) * time.Millisecond
}

// GetMaxPollAttempts returns the polling attempt budget per job
func (c *Configuration) GetMaxPollAttempts() int {
	return c.viper.GetInt("poll.max_attempts")
}

// GetBackstopMinChars returns the minimum stored transcript length that counts
// as completion evidence
func (c *Configuration) GetBackstopMinChars() int {
	return c.viper.GetInt("poll.backstop_min_chars")
}

// GetMergeGapSec returns the largest pause bridged when merging same-speaker turns
func (c *Configuration) GetMergeGapSec() float64 {
	return c.viper.GetFloat64("reconstruct.merge_gap_sec")
}

// GetValidationMinRatio returns the lower acceptance bound for reconstruction validation
func (c *Configuration) GetValidationMinRatio() float64 {
	return c.viper.GetFloat64("reconstruct.min_ratio")
}

// GetValidationMaxRatio returns the upper acceptance bound for reconstruction validation
func (c *Configuration) GetValidationMaxRatio() float64 {
	return c.viper.GetFloat64("reconstruct.max_ratio")
}

// GetStoreDBPath returns the SQLite database path for meeting records
func (c *Configuration) GetStoreDBPath() string {
	return c.viper.GetString("store.db_path")
}

// GetMetricsListenAddr returns the listen address for the Prometheus endpoint
func (c *Configuration) GetMetricsListenAddr() string {
	return c.viper.GetString("metrics.listen_addr")
}

// GetOutputPath returns the JSON lines file completed transcripts are appended to
func (c *Configuration) GetOutputPath() string {
	return c.viper.GetString("output.path")
}

// GetJobIDs returns the job ids to start polling at startup
func (c *Configuration) GetJobIDs() []string {
	values := c.viper.GetStringSlice("jobs.ids")
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// SetJobIDs overrides the job ids to poll, typically from command line flags
func (c *Configuration) SetJobIDs(ids []string) {
	c.viper.Set("jobs.ids", ids)
}

// GetDebugMode returns whether verbose debug logging is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("debug_mode")
}

// SetDebugMode toggles verbose debug logging at runtime
func (c *Configuration) SetDebugMode(enabled bool) {
	c.viper.Set("debug_mode", enabled)
}
