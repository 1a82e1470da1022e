package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	ConvAI ConvAIConfig
	OpenAI OpenAIConfig
	Poll   PollConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for hosted-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

// ConvAIConfig points at the conversational-AI calling provider.
type ConvAIConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// OpenAIConfig configures the sentiment analyzer model.
// BaseURL is optional and exists for compatible gateways and tests.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// PollConfig tunes the call polling pipeline.
type PollConfig struct {
	// Interval between polling cycles. MinPollInterval is the hard floor.
	Interval time.Duration
	// PageSize is how many recent conversations one cycle fetches.
	PageSize int
	// BatchSize calls are processed concurrently, with BatchPause between batches.
	BatchSize  int
	BatchPause time.Duration
	// Dedup cache bounds: evict to CacheKeep entries once CacheMax is exceeded.
	CacheMax  int
	CacheKeep int
	// DefaultOrgID is used when a call carries no organization metadata.
	DefaultOrgID string
	// LeaseTTL bounds the cross-replica poll lease held for one cycle.
	LeaseTTL time.Duration
}

// MinPollInterval is the lowest polling interval the service accepts.
const MinPollInterval = 30 * time.Second

const (
	defaultPollInterval = 2 * time.Minute
	defaultPageSize     = 100
	defaultBatchSize    = 3
	defaultBatchPause   = 500 * time.Millisecond
	defaultCacheMax     = 1000
	defaultCacheKeep    = 500
	defaultLeaseTTL     = 5 * time.Minute
	defaultTokenTTL     = 12 * time.Hour
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultConvAIBase   = "https://api.elevenlabs.io"
	defaultHTTPTimeout  = 30 * time.Second
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.TokenTTL = optDuration("JWT_TOKEN_TTL", defaultTokenTTL)

	c.ConvAI.BaseURL = optString("CONVAI_BASE_URL", defaultConvAIBase)
	c.ConvAI.APIKey = os.Getenv("CONVAI_API_KEY")
	c.ConvAI.HTTPTimeout = optDuration("CONVAI_HTTP_TIMEOUT", defaultHTTPTimeout)

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.Model = optString("OPENAI_MODEL", defaultOpenAIModel)

	c.Poll.Interval = optDuration("POLL_INTERVAL", defaultPollInterval)
	{
		n, err := optInt("POLL_PAGE_SIZE", defaultPageSize)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Poll.PageSize = n
	}
	{
		n, err := optInt("POLL_BATCH_SIZE", defaultBatchSize)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Poll.BatchSize = n
	}
	c.Poll.BatchPause = optDuration("POLL_BATCH_PAUSE", defaultBatchPause)
	{
		n, err := optInt("POLL_CACHE_MAX", defaultCacheMax)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Poll.CacheMax = n
	}
	{
		n, err := optInt("POLL_CACHE_KEEP", defaultCacheKeep)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Poll.CacheKeep = n
	}
	c.Poll.DefaultOrgID = strings.TrimSpace(os.Getenv("DEFAULT_ORG_ID"))
	c.Poll.LeaseTTL = optDuration("POLL_LEASE_TTL", defaultLeaseTTL)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		}
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TOKEN_TTL must be positive"))
	}

	if c.ConvAI.BaseURL == "" {
		errs = append(errs, errors.New("CONVAI_BASE_URL is required"))
	}
	if c.ConvAI.APIKey == "" {
		errs = append(errs, errors.New("CONVAI_API_KEY is required"))
	}
	if c.ConvAI.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("CONVAI_HTTP_TIMEOUT must be positive"))
	}

	// OPENAI_API_KEY is optional: without it the poller records calls and
	// transcripts but skips sentiment analysis.
	if c.OpenAI.APIKey != "" && c.OpenAI.Model == "" {
		errs = append(errs, errors.New("OPENAI_MODEL is required when OPENAI_API_KEY is set"))
	}

	if c.Poll.Interval < MinPollInterval {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least %s, got %s", MinPollInterval, c.Poll.Interval))
	}
	if c.Poll.PageSize <= 0 || c.Poll.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("POLL_PAGE_SIZE must be in 1..1000, got %d", c.Poll.PageSize))
	}
	if c.Poll.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("POLL_BATCH_SIZE must be positive, got %d", c.Poll.BatchSize))
	}
	if c.Poll.BatchPause < 0 {
		errs = append(errs, fmt.Errorf("POLL_BATCH_PAUSE must not be negative, got %s", c.Poll.BatchPause))
	}
	if c.Poll.CacheMax <= 0 {
		errs = append(errs, fmt.Errorf("POLL_CACHE_MAX must be positive, got %d", c.Poll.CacheMax))
	}
	if c.Poll.CacheKeep <= 0 || c.Poll.CacheKeep >= c.Poll.CacheMax {
		errs = append(errs, fmt.Errorf("POLL_CACHE_KEEP must be positive and below POLL_CACHE_MAX, got %d", c.Poll.CacheKeep))
	}
	if c.Poll.DefaultOrgID == "" {
		errs = append(errs, errors.New("DEFAULT_ORG_ID is required"))
	}
	if c.Poll.LeaseTTL <= 0 {
		errs = append(errs, errors.New("POLL_LEASE_TTL must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	sslMode := c.DB.SSLMode
	if sslMode == "" {
		// Local-friendly default; production must be explicit (see Validate).
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		sslMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func optString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
