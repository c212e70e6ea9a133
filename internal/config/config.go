package config

import (
	"strings"
	"time"
)

const (
	ProviderMeta   = "meta"
	ProviderTwilio = "twilio"

	DefaultMetaAPIVersion   = "v22.0"
	DefaultMetaTemplateName = "initial_conversation"
	DefaultMetaLanguageCode = "es_AR"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Messaging      MessagingConfig      `mapstructure:"messaging"`
	Meta           MetaConfig           `mapstructure:"meta"`
	Twilio         TwilioConfig         `mapstructure:"twilio"`
	Email          EmailConfig          `mapstructure:"email"`
	Security       SecurityConfig       `mapstructure:"security"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
	SwaggerEnabled      bool          `mapstructure:"swagger_enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MessagingConfig struct {
	// Provider is "meta" or "twilio" and is fixed for the process lifetime.
	Provider string `mapstructure:"provider"`
}

type MetaConfig struct {
	APIToken       string        `mapstructure:"api_token"`
	PhoneNumberID  string        `mapstructure:"phone_number_id"`
	VerifyToken    string        `mapstructure:"verify_token"`
	BaseURL        string        `mapstructure:"base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	TemplateName   string        `mapstructure:"template_name"`
	LanguageCode   string        `mapstructure:"language_code"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type TwilioConfig struct {
	AccountSID        string        `mapstructure:"account_sid"`
	AuthToken         string        `mapstructure:"auth_token"`
	WhatsAppNumber    string        `mapstructure:"whatsapp_number"`
	TemplateSID       string        `mapstructure:"template_sid"`
	XToken            string        `mapstructure:"x_token"`
	StatusCallbackURL string        `mapstructure:"status_callback_url"`
	ValidateSignature bool          `mapstructure:"validate_signature"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type EmailConfig struct {
	APIKey      string      `mapstructure:"api_key"`
	FromName    string      `mapstructure:"from_name"`
	FromAddress string      `mapstructure:"from_address"`
	Recipients  []string    `mapstructure:"recipients"`
	Retry       RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type SecurityConfig struct {
	TriggerAuthToken string   `mapstructure:"trigger_auth_token"`
	AllowedIPs       []string `mapstructure:"allowed_ips"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// GraphURL is the versioned Graph API root, e.g. https://graph.facebook.com/v22.0.
func (c MetaConfig) GraphURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + c.APIVersion
}

// MetaMessagesPath is the Graph API path that accepts outbound messages for the
// configured business phone number.
func (c MetaConfig) MetaMessagesPath() string {
	return "/" + c.PhoneNumberID + "/messages"
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
