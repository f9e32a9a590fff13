package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultFallbackAnswer is recorded as the answer of a question nobody answered in time.
const DefaultFallbackAnswer = "Sorry, no human could be reached. Please use your best judgment."

// Config holds all application configuration loaded from environment variables.
type Config struct {
	APIKey   string //nolint:gosec // G117: shared API key config
	Question QuestionConfig
	Server   ServerConfig
	Notify   NotifyConfig
	Pushover PushoverConfig
	Slack    SlackConfig
	Redis    RedisConfig
	Log      LogConfig
}

// QuestionConfig holds question lifecycle settings.
type QuestionConfig struct {
	TTLSeconds          int
	PollIntervalSeconds int
	FallbackAnswer      string
	SweepInterval       time.Duration
}

// ServerConfig holds HTTP server settings for both listeners.
type ServerConfig struct {
	PublicURL      string
	FormAddr       string
	AgentAddr      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	Timeout time.Duration
}

// PushoverConfig holds Pushover credentials. Both must be set to enable the channel.
type PushoverConfig struct {
	Token   string
	UserKey string
}

// Enabled reports whether Pushover delivery is configured.
func (c PushoverConfig) Enabled() bool { return c.Token != "" && c.UserKey != "" }

// SlackConfig holds Slack integration settings.
type SlackConfig struct {
	BotToken      string
	ChannelID     string
	SigningSecret string
}

// Enabled reports whether Slack delivery is configured.
func (c SlackConfig) Enabled() bool { return c.BotToken != "" && c.ChannelID != "" }

// RedisConfig holds Redis connection settings. An empty Addr disables event publishing.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// LoadLog reads only the logging settings so the logger can be configured
// before Load reports validation warnings.
func LoadLog() LogConfig {
	return LogConfig{
		Level:  getEnv("HANDOFF_LOG_LEVEL", "info"),
		Format: getEnv("HANDOFF_LOG_FORMAT", "json"),
	}
}

// Load reads configuration from environment variables.
// Defaults are suitable for local development. Without HANDOFF_API_KEY the
// agent-facing endpoints are open to anyone who can reach them.
func Load() (*Config, error) {
	ttl, err := getEnvInt("HANDOFF_QUESTION_TTL_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pollInterval, err := getEnvInt("HANDOFF_POLL_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sweepInterval, err := getEnvDuration("HANDOFF_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("HANDOFF_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("HANDOFF_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("HANDOFF_RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("HANDOFF_RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	notifyTimeout, err := getEnvDuration("HANDOFF_NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("HANDOFF_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		APIKey: getEnv("HANDOFF_API_KEY", ""),
		Question: QuestionConfig{
			TTLSeconds:          ttl,
			PollIntervalSeconds: pollInterval,
			FallbackAnswer:      getEnv("HANDOFF_FALLBACK_ANSWER", DefaultFallbackAnswer),
			SweepInterval:       sweepInterval,
		},
		Server: ServerConfig{
			PublicURL:      strings.TrimRight(getEnv("HANDOFF_SERVER_URL", "http://localhost:8000"), "/"),
			FormAddr:       getEnv("HANDOFF_FORM_ADDR", ":8000"),
			AgentAddr:      getEnv("HANDOFF_AGENT_ADDR", ":8765"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    getEnvList("HANDOFF_CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Notify: NotifyConfig{
			Timeout: notifyTimeout,
		},
		Pushover: PushoverConfig{
			Token:   getEnv("HANDOFF_PUSHOVER_TOKEN", ""),
			UserKey: getEnv("HANDOFF_PUSHOVER_USER", ""),
		},
		Slack: SlackConfig{
			BotToken:      getEnv("HANDOFF_SLACK_BOT_TOKEN", ""),
			ChannelID:     getEnv("HANDOFF_SLACK_CHANNEL", ""),
			SigningSecret: getEnv("HANDOFF_SLACK_SIGNING_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("HANDOFF_REDIS_ADDR", ""),
			Password: getEnv("HANDOFF_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Log: LoadLog(),
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.APIKey == "" {
		log.Warn().Msg("HANDOFF_API_KEY is not set; agent endpoints accept unauthenticated requests")
	}

	if c.Question.TTLSeconds < 1 {
		return fmt.Errorf("HANDOFF_QUESTION_TTL_SECONDS must be >= 1, got %d", c.Question.TTLSeconds)
	}
	if c.Question.PollIntervalSeconds < 1 {
		return fmt.Errorf("HANDOFF_POLL_INTERVAL_SECONDS must be >= 1, got %d", c.Question.PollIntervalSeconds)
	}
	if strings.TrimSpace(c.Question.FallbackAnswer) == "" {
		return errors.New("HANDOFF_FALLBACK_ANSWER must not be blank")
	}
	if c.Question.SweepInterval < 0 {
		return fmt.Errorf("HANDOFF_SWEEP_INTERVAL must not be negative, got %s", c.Question.SweepInterval)
	}

	u, err := url.Parse(c.Server.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("HANDOFF_SERVER_URL must be an absolute http(s) URL, got %q", c.Server.PublicURL)
	}
	if c.Server.FormAddr == c.Server.AgentAddr {
		return fmt.Errorf("HANDOFF_FORM_ADDR and HANDOFF_AGENT_ADDR must differ, both are %q", c.Server.FormAddr)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("HANDOFF_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HANDOFF_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("HANDOFF_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("HANDOFF_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("HANDOFF_NOTIFY_TIMEOUT must be positive, got %s", c.Notify.Timeout)
	}

	if (c.Pushover.Token == "") != (c.Pushover.UserKey == "") {
		log.Warn().Msg("HANDOFF_PUSHOVER_TOKEN and HANDOFF_PUSHOVER_USER must both be set; pushover disabled")
	}
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		log.Warn().Msg("HANDOFF_SLACK_CHANNEL is not set; slack disabled")
	}
	if !c.Pushover.Enabled() && !c.Slack.Enabled() {
		log.Warn().Msg("no notification channel configured; reviewers will not be alerted")
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("HANDOFF_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("HANDOFF_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
