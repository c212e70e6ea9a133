package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig reads configFile (optional) and overlays environment variables.
// An empty configFile loads from the environment and defaults only.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout_seconds", 15*time.Second)
	viper.SetDefault("server.write_timeout_seconds", 15*time.Second)
	viper.SetDefault("server.swagger_enabled", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("messaging.provider", ProviderMeta)

	viper.SetDefault("meta.api_version", DefaultMetaAPIVersion)
	viper.SetDefault("meta.base_url", "https://graph.facebook.com")
	viper.SetDefault("meta.template_name", DefaultMetaTemplateName)
	viper.SetDefault("meta.language_code", DefaultMetaLanguageCode)
	viper.SetDefault("meta.request_timeout", 10*time.Second)

	viper.SetDefault("twilio.request_timeout", 10*time.Second)

	viper.SetDefault("email.from_name", "Sistema de Alertas")
	viper.SetDefault("email.retry.max_attempts", 3)
	viper.SetDefault("email.retry.initial_interval", 500*time.Millisecond)
	viper.SetDefault("email.retry.max_interval", 5*time.Second)
	viper.SetDefault("email.retry.multiplier", 2.0)
	viper.SetDefault("email.retry.max_elapsed_time", 20*time.Second)

	viper.SetDefault("rate_limit.rps", 10.0)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("rate_limit.cleanup_interval", 60)
	viper.SetDefault("rate_limit.max_age", 300)

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", 60*time.Second)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.service_name", "relay-service")
	viper.SetDefault("tracing.sampler.type", "always")
	viper.SetDefault("tracing.sampler.param", 1.0)
}

// bindEnvVariables binds each key to its dotted-path env name and to the
// variable names used by existing deployments.
func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT", "PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("messaging.provider", "MESSAGING_PROVIDER")

	viper.BindEnv("meta.api_token", "META_API_TOKEN", "WHATSAPP_API_TOKEN")
	viper.BindEnv("meta.phone_number_id", "META_PHONE_NUMBER_ID", "WHATSAPP_PHONE_NUMBER_ID")
	viper.BindEnv("meta.verify_token", "META_VERIFY_TOKEN", "WHATSAPP_VERIFY_TOKEN")
	viper.BindEnv("meta.base_url", "META_BASE_URL")
	viper.BindEnv("meta.api_version", "META_API_VERSION")

	viper.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	viper.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	viper.BindEnv("twilio.whatsapp_number", "TWILIO_WHATSAPP_NUMBER")
	viper.BindEnv("twilio.template_sid", "TWILIO_TEMPLATE_SID")
	viper.BindEnv("twilio.x_token", "TWILIO_X_TOKEN")
	viper.BindEnv("twilio.status_callback_url", "TWILIO_STATUS_CALLBACK_URL")
	viper.BindEnv("twilio.validate_signature", "TWILIO_VALIDATE_SIGNATURE")

	viper.BindEnv("email.api_key", "EMAIL_API_KEY", "SENDGRID_API_KEY")
	viper.BindEnv("email.from_address", "EMAIL_FROM_ADDRESS")
	viper.BindEnv("email.from_name", "EMAIL_FROM_NAME")

	viper.BindEnv("security.trigger_auth_token", "SECURITY_TRIGGER_AUTH_TOKEN", "ASTERVOIP_AUTH_TOKEN")

	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles comma separated list variables, which viper does
// not split on its own when unmarshalling into slices.
func applyEnvOverrides(cfg *Config) {
	if ips := splitList(viper.GetString("ALLOWED_IPS")); len(ips) > 0 {
		cfg.Security.AllowedIPs = ips
	}
	if recipients := splitList(viper.GetString("EMAIL_RECIPIENTS")); len(recipients) > 0 {
		cfg.Email.Recipients = recipients
	}
	cfg.Messaging.Provider = strings.ToLower(strings.TrimSpace(cfg.Messaging.Provider))
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
