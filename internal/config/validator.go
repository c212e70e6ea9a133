package config

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"sort"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks everything that can be verified without network
// access. All failures are joined so operators see the full list at once.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		validateMessaging,
		func(c *Config) error { return validateEmail(c.Email) },
		func(c *Config) error { return validateSecurity(c.Security) },
		func(c *Config) error { return validateRateLimit(c.RateLimit) },
		func(c *Config) error { return validateCircuitBreaker(c.CircuitBreaker) },
		func(c *Config) error { return validateTracing(c.Tracing) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateMessaging(cfg *Config) error {
	switch cfg.Messaging.Provider {
	case ProviderMeta:
		return validateMeta(cfg.Meta)
	case ProviderTwilio:
		return validateTwilio(cfg.Twilio)
	default:
		return &ValidationError{
			Field:   "messaging.provider",
			Message: fmt.Sprintf("unknown messaging provider: %q (supported: meta, twilio)", cfg.Messaging.Provider),
		}
	}
}

func validateMeta(cfg MetaConfig) error {
	missing := missingFields(map[string]string{
		"meta.api_token":       cfg.APIToken,
		"meta.phone_number_id": cfg.PhoneNumberID,
		"meta.verify_token":    cfg.VerifyToken,
	})
	if len(missing) > 0 {
		return &ValidationError{
			Field:   "messaging.provider",
			Message: fmt.Sprintf("provider %q requires %s", ProviderMeta, strings.Join(missing, ", ")),
		}
	}

	if cfg.TemplateName == "" || cfg.LanguageCode == "" {
		return &ValidationError{
			Field:   "meta.template_name",
			Message: "template name and language code are required",
		}
	}

	return nil
}

func validateTwilio(cfg TwilioConfig) error {
	missing := missingFields(map[string]string{
		"twilio.account_sid":     cfg.AccountSID,
		"twilio.auth_token":      cfg.AuthToken,
		"twilio.whatsapp_number": cfg.WhatsAppNumber,
		"twilio.template_sid":    cfg.TemplateSID,
		"twilio.x_token":         cfg.XToken,
	})
	if len(missing) > 0 {
		return &ValidationError{
			Field:   "messaging.provider",
			Message: fmt.Sprintf("provider %q requires %s", ProviderTwilio, strings.Join(missing, ", ")),
		}
	}

	if !strings.HasPrefix(cfg.WhatsAppNumber, "whatsapp:") {
		return &ValidationError{
			Field:   "twilio.whatsapp_number",
			Message: "sender must be a WhatsApp address of the form whatsapp:+<number>",
		}
	}

	if cfg.ValidateSignature && cfg.StatusCallbackURL == "" {
		return &ValidationError{
			Field:   "twilio.status_callback_url",
			Message: "status callback URL is required when signature validation is enabled",
		}
	}

	return nil
}

func validateEmail(cfg EmailConfig) error {
	if cfg.APIKey == "" {
		return &ValidationError{
			Field:   "email.api_key",
			Message: "email provider API key is required",
		}
	}

	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return &ValidationError{
			Field:   "email.from_address",
			Message: fmt.Sprintf("invalid sender address %q", cfg.FromAddress),
		}
	}

	if len(cfg.Recipients) == 0 {
		return &ValidationError{
			Field:   "email.recipients",
			Message: "at least one recipient is required",
		}
	}

	for i, r := range cfg.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("email.recipients[%d]", i),
				Message: fmt.Sprintf("invalid recipient address %q", r),
			}
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "email.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "email.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	return nil
}

func validateSecurity(cfg SecurityConfig) error {
	if cfg.TriggerAuthToken == "" {
		return &ValidationError{
			Field:   "security.trigger_auth_token",
			Message: "trigger auth token is required",
		}
	}

	for i, ip := range cfg.AllowedIPs {
		if net.ParseIP(ip) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(ip); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("security.allowed_ips[%d]", i),
				Message: fmt.Sprintf("%q is neither an IP address nor a CIDR block", ip),
			}
		}
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RPS <= 0 {
		return &ValidationError{
			Field:   "rate_limit.rps",
			Message: "rps must be positive when rate limiting is enabled",
		}
	}

	if cfg.Burst < 1 {
		return &ValidationError{
			Field:   "rate_limit.burst",
			Message: "burst must be at least 1",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: fmt.Sprintf("failure ratio must be in (0, 1], got %v", cfg.FailureRatio),
		}
	}

	return nil
}

func validateTracing(cfg TracingConfig) error {
	if cfg.Enabled && cfg.OTLP.Endpoint == "" {
		return &ValidationError{
			Field:   "tracing.otlp.endpoint",
			Message: "OTLP endpoint is required when tracing is enabled",
		}
	}

	return nil
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
