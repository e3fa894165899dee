package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the relay process.
// All values come from env (optionally preloaded from a .env file).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	Telephony  TelephonyConfig
	Sipgate    SipgateConfig
	Twilio     TwilioConfig
	VoiceAgent VoiceAgentConfig
	Calls      CallsConfig
	HTTP       HTTPConfig
	DB         DBConfig
	Redis      RedisConfig
	MQTT       MQTTConfig
	Auth       AuthConfig
}

type AppConfig struct {
	Env  string
	Port int

	// ServerURL is the externally reachable base URL used in callback URLs.
	ServerURL string
}

type TelephonyConfig struct {
	// Provider is "sipgate" or "twilio".
	Provider string

	// HTTPTimeout bounds provider HTTP calls; zero means no timeout.
	HTTPTimeout time.Duration
}

type SipgateConfig struct {
	BaseURL  string
	TokenID  string
	Token    string
	CallerID string
	DeviceID string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// AnswerLanguage and AnswerPause shape the TwiML greeting.
	AnswerLanguage string
	AnswerPause    int
}

type VoiceAgentConfig struct {
	APIKey        string
	AgentID       string
	BaseURL       string
	SignedURLPath string

	// Sessions opens an agent conversation when a call is answered.
	Sessions bool
}

type CallsConfig struct {
	// RecordTTL evicts records whose end event never arrived; zero disables.
	RecordTTL     time.Duration
	SweepInterval time.Duration
}

type HTTPConfig struct {
	CORSAllowOrigins []string
}

// DBConfig is optional; with an empty Host the audit trail stays in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional; with an empty Host no Redis notifier is started.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MQTTConfig is optional; with an empty Broker no MQTT notifier is started.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// AuthConfig is optional; with an empty JWTSecret /outbound-call is open.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

const (
	ProviderSipgate = "sipgate"
	ProviderTwilio  = "twilio"

	defaultPort = 8765
)

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = envOr("APP_ENV", "local")
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT", defaultPort)
	c.App.ServerURL = strings.TrimSpace(os.Getenv("SERVER_URL"))

	c.Telephony.Provider = strings.ToLower(envOr("TELEPHONY_PROVIDER", ProviderSipgate))
	c.Telephony.HTTPTimeout, parseErrs = optionalDuration(parseErrs, "PROVIDER_HTTP_TIMEOUT")

	c.Sipgate.BaseURL = strings.TrimSpace(os.Getenv("SIPGATE_BASE_URL"))
	c.Sipgate.TokenID = strings.TrimSpace(os.Getenv("SIPGATE_TOKEN_ID"))
	c.Sipgate.Token = os.Getenv("SIPGATE_TOKEN")
	c.Sipgate.CallerID = strings.TrimSpace(os.Getenv("SIPGATE_CALLER_ID"))
	c.Sipgate.DeviceID = strings.TrimSpace(os.Getenv("SIPGATE_DEVICE_ID"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.AnswerLanguage = strings.TrimSpace(os.Getenv("TWILIO_ANSWER_LANGUAGE"))
	c.Twilio.AnswerPause, parseErrs = optionalInt(parseErrs, "TWILIO_ANSWER_PAUSE", 0)

	c.VoiceAgent.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.VoiceAgent.AgentID = strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_ID"))
	c.VoiceAgent.BaseURL = strings.TrimSpace(os.Getenv("ELEVENLABS_BASE_URL"))
	c.VoiceAgent.SignedURLPath = strings.TrimSpace(os.Getenv("ELEVENLABS_SIGNED_URL_PATH"))
	c.VoiceAgent.Sessions, parseErrs = optionalBool(parseErrs, "ELEVENLABS_SESSIONS")

	c.Calls.RecordTTL, parseErrs = optionalDuration(parseErrs, "CALL_RECORD_TTL")
	c.Calls.SweepInterval, parseErrs = optionalDuration(parseErrs, "CALL_RECORD_SWEEP_INTERVAL")

	c.HTTP.CORSAllowOrigins = splitList(envOr("CORS_ALLOW_ORIGINS", "*"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = optionalInt(parseErrs, "REDIS_DB", 0)

	c.MQTT.Broker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	c.MQTT.ClientID = envOr("MQTT_CLIENT_ID", "call-relay")
	c.MQTT.TopicPrefix = envOr("MQTT_TOPIC_PREFIX", "call-relay")

	c.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.ServerURL != "" && !strings.HasPrefix(c.App.ServerURL, "http://") && !strings.HasPrefix(c.App.ServerURL, "https://") {
		errs = append(errs, fmt.Errorf("SERVER_URL must be an http(s) URL, got %q", c.App.ServerURL))
	}
	if c.Telephony.HTTPTimeout < 0 {
		errs = append(errs, errors.New("PROVIDER_HTTP_TIMEOUT must not be negative"))
	}

	switch c.Telephony.Provider {
	case ProviderSipgate:
		if c.Sipgate.TokenID == "" {
			errs = append(errs, errors.New("SIPGATE_TOKEN_ID is required"))
		}
		if c.Sipgate.Token == "" {
			errs = append(errs, errors.New("SIPGATE_TOKEN is required"))
		}
		if c.Sipgate.CallerID == "" && c.IsProduction() {
			errs = append(errs, errors.New("SIPGATE_CALLER_ID is required in production"))
		}
	case ProviderTwilio:
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
		}
		if c.Twilio.AnswerPause < 0 {
			errs = append(errs, errors.New("TWILIO_ANSWER_PAUSE must not be negative"))
		}
		if c.App.ServerURL == "" {
			// Twilio fetches call instructions from our answer URL.
			errs = append(errs, errors.New("SERVER_URL is required with TELEPHONY_PROVIDER=twilio"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be one of sipgate, twilio, got %q", c.Telephony.Provider))
	}

	if c.VoiceAgent.Sessions {
		if c.VoiceAgent.APIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required when ELEVENLABS_SESSIONS is enabled"))
		}
		if c.VoiceAgent.AgentID == "" {
			errs = append(errs, errors.New("ELEVENLABS_AGENT_ID is required when ELEVENLABS_SESSIONS is enabled"))
		}
	}

	if c.Calls.RecordTTL < 0 {
		errs = append(errs, errors.New("CALL_RECORD_TTL must not be negative"))
	}
	if c.Calls.RecordTTL > 0 && c.Calls.SweepInterval <= 0 {
		c.Calls.SweepInterval = time.Minute
	}

	if len(c.HTTP.CORSAllowOrigins) == 0 {
		c.HTTP.CORSAllowOrigins = []string{"*"}
	}

	if c.AuditDatabaseEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret != "" && c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) AuditDatabaseEnabled() bool {
	return c.DB.Host != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
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

func optionalBool(errs []error, key string) (bool, []error) {
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

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
