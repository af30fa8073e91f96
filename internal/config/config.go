package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	NATSSubjectBase     string
	JWTSecret           string
	StatusCacheTTL      time.Duration
	AIProvider          string
	AIModel             string
	AITimeout           time.Duration
	OpenAIAPIKey        string
	GeminiAPIKey        string
	GitHubToken         string
	GitHubAPIURL        string
	FetchTimeout        time.Duration
	DemoTimeout         time.Duration
	FetchUserAgent      string
	BatchDelay          time.Duration
	DetachedRunTimeout  time.Duration
	StaleClaimAfter     time.Duration
	TriggerRateLimit    int
	TriggerRateInterval time.Duration
	SeedEnabled         bool
	SeedToken           string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HACKHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "HackHub API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject_base", "hackhub")
	v.SetDefault("status.cache_ttl", "30s")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.demo_timeout", "10s")
	v.SetDefault("fetch.user_agent", "HackHub-Analyzer/1.0")
	v.SetDefault("analysis.batch_delay", "1s")
	v.SetDefault("analysis.detached_timeout", "3m")
	v.SetDefault("analysis.stale_claim_after", "5m")
	v.SetDefault("analysis.trigger_rate_limit", 10)
	v.SetDefault("analysis.trigger_rate_interval", "1m")
	v.SetDefault("seed.enabled", false)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"status.cache_ttl",
		"ai.timeout",
		"fetch.timeout",
		"fetch.demo_timeout",
		"analysis.batch_delay",
		"analysis.detached_timeout",
		"analysis.stale_claim_after",
		"analysis.trigger_rate_interval",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		NATSSubjectBase:     v.GetString("nats.subject_base"),
		JWTSecret:           v.GetString("jwt.secret"),
		StatusCacheTTL:      durations["status.cache_ttl"],
		AIProvider:          strings.ToLower(v.GetString("ai.provider")),
		AIModel:             v.GetString("ai.model"),
		AITimeout:           durations["ai.timeout"],
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		GeminiAPIKey:        v.GetString("gemini_api_key"),
		GitHubToken:         v.GetString("github.token"),
		GitHubAPIURL:        v.GetString("github.api_url"),
		FetchTimeout:        durations["fetch.timeout"],
		DemoTimeout:         durations["fetch.demo_timeout"],
		FetchUserAgent:      v.GetString("fetch.user_agent"),
		BatchDelay:          durations["analysis.batch_delay"],
		DetachedRunTimeout:  durations["analysis.detached_timeout"],
		StaleClaimAfter:     durations["analysis.stale_claim_after"],
		TriggerRateLimit:    v.GetInt("analysis.trigger_rate_limit"),
		TriggerRateInterval: durations["analysis.trigger_rate_interval"],
		SeedEnabled:         v.GetBool("seed.enabled"),
		SeedToken:           v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DemoTimeout <= 0 {
		cfg.DemoTimeout = 10 * time.Second
	}

	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	// A live run must never look abandoned.
	if minStale := cfg.DetachedRunTimeout + time.Minute; cfg.StaleClaimAfter < minStale {
		cfg.StaleClaimAfter = minStale
	}

	return cfg, nil
}
