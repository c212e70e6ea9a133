package constants

import "time"

const (
	ShutdownTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ServiceNameMeta     = "meta"
	ServiceNameTwilio   = "twilio"
	ServiceNameSendGrid = "sendgrid"
)

// Metric label values for inbound payload sources.
const (
	PayloadSourceMeta         = "meta"
	PayloadSourceTwilio       = "twilio"
	PayloadSourceTwilioStudio = "twilio_studio"
	PayloadSourceTwilioStatus = "twilio_status"
)

const (
	MetricStatusSuccess         = "success"
	MetricStatusValidationError = "validation_error"
	MetricStatusServerError     = "server_error"
	MetricStatusFailed          = "failed"
)

const (
	MessagingProductWhatsApp = "whatsapp"
	MessageTypeTemplate      = "template"
	MessageTypeInteractive   = "interactive"
	InteractiveTypeNFMReply  = "nfm_reply"
	MetaBusinessAccount      = "whatsapp_business_account"
)

const (
	// WhatsAppAddressPrefix marks a Twilio WhatsApp address, e.g. whatsapp:+5491122334455.
	WhatsAppAddressPrefix = "whatsapp:"
)

const (
	HeaderTwilioToken = "X-Token"
)
