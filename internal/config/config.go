package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the server process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Twilio TwilioConfig
	LLM    LLMConfig
	Auth   AuthConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	MQTT   MQTTConfig
	Audio  AudioConfig
}

type AppConfig struct {
	Env         string
	Port        int
	ServiceName string
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	APIBaseURL  string

	// WebhookBaseURL is the public origin Twilio posts status callbacks to.
	WebhookBaseURL string
	// MediaStreamURL overrides the websocket URL calls stream their audio to.
	MediaStreamURL string

	Timeout            time.Duration
	MaxConcurrentCalls int
}

type LLMConfig struct {
	APIKey             string
	Model              string
	BaseURL            string
	TranscriptionModel string
	Timeout            time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// RequireMCPAuth gates /mcp behind a signed access token.
	RequireMCPAuth bool

	// TokensFile is an optional YAML file of provisioned opaque tokens.
	TokensFile string
	// TokenTTL applies to provisioned tokens without an explicit expiry.
	TokenTTL time.Duration
}

type StoreConfig struct {
	// Driver accepts: memory, sqlite, postgres
	Driver     string
	SQLitePath string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for production posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

type AudioConfig struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
	ChunkSeconds   float64
	ScratchDir     string
	// IdleTimeout stops a live stream that has received no frames for this long.
	IdleTimeout time.Duration

	ArchiveBucket string
	AWSRegion     string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.ServiceName = strings.TrimSpace(os.Getenv("SERVICE_NAME"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.APIBaseURL = strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL"))
	c.Twilio.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL")), "/")
	c.Twilio.MediaStreamURL = strings.TrimSpace(os.Getenv("TWILIO_MEDIA_STREAM_URL"))
	c.Twilio.Timeout, parseErrs = appendDuration(parseErrs, "PROVIDER_TIMEOUT")
	c.Twilio.MaxConcurrentCalls, parseErrs = appendOptionalInt(parseErrs, "MAX_CONCURRENT_CALLS")

	c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.LLM.TranscriptionModel = strings.TrimSpace(os.Getenv("TRANSCRIPTION_MODEL"))
	c.LLM.Timeout, parseErrs = appendDuration(parseErrs, "LLM_TIMEOUT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = appendDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RequireMCPAuth, parseErrs = appendBool(parseErrs, "MCP_REQUIRE_AUTH")
	c.Auth.TokensFile = strings.TrimSpace(os.Getenv("AUTH_TOKENS_FILE"))
	c.Auth.TokenTTL, parseErrs = appendDuration(parseErrs, "AUTH_TOKEN_TTL")

	c.Store.Driver = strings.TrimSpace(os.Getenv("STORE_DRIVER"))
	c.Store.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = appendOptionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = appendOptionalInt(parseErrs, "REDIS_PORT")

	c.MQTT.Broker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	c.MQTT.ClientID = strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	c.MQTT.TopicPrefix = strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))

	c.Audio.SampleRate, parseErrs = appendOptionalInt(parseErrs, "AUDIO_SAMPLE_RATE")
	c.Audio.Channels, parseErrs = appendOptionalInt(parseErrs, "AUDIO_CHANNELS")
	c.Audio.BytesPerSample, parseErrs = appendOptionalInt(parseErrs, "AUDIO_BYTES_PER_SAMPLE")
	c.Audio.ChunkSeconds, parseErrs = appendFloat(parseErrs, "AUDIO_CHUNK_SECONDS")
	c.Audio.ScratchDir = strings.TrimSpace(os.Getenv("AUDIO_SCRATCH_DIR"))
	c.Audio.IdleTimeout, parseErrs = appendDuration(parseErrs, "AUDIO_IDLE_TIMEOUT")
	c.Audio.ArchiveBucket = strings.TrimSpace(os.Getenv("AUDIO_ARCHIVE_BUCKET"))
	c.Audio.AWSRegion = strings.TrimSpace(os.Getenv("AWS_REGION"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.ServiceName == "" {
		c.App.ServiceName = "call-assistant-mcp"
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.PhoneNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}
	if c.Twilio.WebhookBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("WEBHOOK_BASE_URL is required in production"))
		} else {
			c.Twilio.WebhookBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}
	if c.Twilio.Timeout <= 0 {
		c.Twilio.Timeout = 15 * time.Second
	}
	if c.Twilio.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Twilio.MaxConcurrentCalls))
	}
	if c.Twilio.MaxConcurrentCalls > 0 && c.Redis.Host == "" {
		errs = append(errs, errors.New("MAX_CONCURRENT_CALLS requires REDIS_HOST"))
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.TranscriptionModel == "" {
		c.LLM.TranscriptionModel = "whisper-1"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}

	if c.Auth.RequireMCPAuth && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("MCP_REQUIRE_AUTH requires JWT_SECRET"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			c.Store.SQLitePath = "call-assistant.db"
		}
	case "postgres":
		errs = append(errs, c.validatePostgres()...)
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, sqlite, postgres, got %q", c.Store.Driver))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = c.App.ServiceName
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "calls"
		}
	}

	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 8000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.BytesPerSample <= 0 {
		c.Audio.BytesPerSample = 2
	}
	if c.Audio.ChunkSeconds <= 0 {
		c.Audio.ChunkSeconds = 2.0
	}
	if c.Audio.IdleTimeout <= 0 {
		c.Audio.IdleTimeout = 2 * time.Minute
	}
	if c.Audio.ArchiveBucket != "" && c.Audio.AWSRegion == "" {
		errs = append(errs, errors.New("AWS_REGION is required when AUDIO_ARCHIVE_BUCKET is set"))
	}

	return joinErrors(errs)
}

func (c Config) validatePostgres() []error {
	var errs []error
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
	if c.DB.SSLMode == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatusCallbackURL is where Twilio posts call lifecycle updates.
func (c Config) StatusCallbackURL() string {
	return c.Twilio.WebhookBaseURL + "/webhook/call-status"
}

// MediaStreamURL is the websocket URL placed calls fork their audio to. It defaults to the
// webhook origin's /mcp socket.
func (c Config) MediaStreamURL() string {
	if c.Twilio.MediaStreamURL != "" {
		return c.Twilio.MediaStreamURL
	}
	base := c.Twilio.WebhookBaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/mcp"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/mcp"
	}
	return ""
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	sslMode := c.DB.SSLMode
	if sslMode == "" {
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
	if c.Redis.Host == "" {
		return ""
	}
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

func appendOptionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func appendFloat(errs []error, key string) (float64, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
	}
	return f, errs
}

func appendBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

// appendDuration parses an optional duration; defaults are applied in Validate().
func appendDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
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
