package messaging

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"surveyrelay/internal/constants"
	"surveyrelay/internal/logger"
	apperrors "surveyrelay/pkg/errors"
	"surveyrelay/pkg/metrics"
	"surveyrelay/pkg/middleware"
)

// AcceptedResponse is returned once a survey trigger has been handed to the provider.
type AcceptedResponse struct {
	Message string `json:"message" example:"Accepted: WhatsApp Template trigger initiated."`
}

type BaseHandler struct {
	Service WebhookService
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
}

type Handler struct {
	BaseHandler
	verifyToken string
}

func NewHandler(service WebhookService, verifyToken string, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
		verifyToken: verifyToken,
	}
}

// RouteGuards holds the per-route middleware chains built by the caller.
type RouteGuards struct {
	Trigger      []gin.HandlerFunc
	TwilioSurvey []gin.HandlerFunc
	TwilioStatus []gin.HandlerFunc
}

func (h *Handler) RegisterRoutes(router gin.IRouter, guards RouteGuards) {
	webhooks := router.Group("/api/v1/webhooks")
	{
		webhooks.POST("/astervoip-trigger", chain(guards.Trigger, h.TriggerSurvey)...)
		webhooks.GET("/whatsapp", h.VerifyMetaWebhook)
		webhooks.POST("/whatsapp", h.MetaWebhook)
		webhooks.POST("/twilio", chain(guards.TwilioSurvey, h.TwilioSurveyWebhook)...)
		webhooks.POST("/twilio-status", chain(guards.TwilioStatus, h.TwilioStatusWebhook)...)
	}
}

// TriggerSurvey godoc
// @Summary      Trigger a survey invite
// @Description  Sends the WhatsApp survey template to the customer through the configured provider
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        trigger  body      SurveyTrigger  true  "Customer to invite"
// @Success      202      {object}  AcceptedResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      401      {object}  errors.ErrorResponse
// @Failure      403      {object}  errors.ErrorResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /webhooks/astervoip-trigger [post]
func (h *Handler) TriggerSurvey(c *gin.Context) {
	ctx := c.Request.Context()
	h.Logger.InfowCtx(ctx, "Survey trigger received", "ip", c.ClientIP())

	raw, err := readBody(c)
	if err != nil {
		metrics.IncTrigger(constants.MetricStatusValidationError)
		h.HandleError(c, apperrors.ErrValidation.WithCause(err))
		return
	}

	trigger, err := parseSurveyTrigger(raw)
	if err != nil {
		metrics.IncTrigger(constants.MetricStatusValidationError)
		appErr := apperrors.ErrValidation.WithCause(err)
		var verr *ValidationError
		if errors.As(err, &verr) {
			appErr = appErr.WithDetail("errors", verr.Issues)
		}
		h.HandleError(c, appErr)
		return
	}

	metrics.IncTrigger(constants.MetricStatusSuccess)

	if err := h.Service.TriggerSurveyTemplate(ctx, trigger.CustomerPhone); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Logger.InfowCtx(ctx, "WhatsApp template trigger initiated", "customer_phone", trigger.CustomerPhone)
	c.JSON(http.StatusAccepted, AcceptedResponse{Message: "Accepted: WhatsApp Template trigger initiated."})
}

// VerifyMetaWebhook godoc
// @Summary      Verify the Meta webhook subscription
// @Description  Echoes hub.challenge when hub.mode is subscribe and hub.verify_token matches
// @Tags         webhooks
// @Produce      plain
// @Param        hub.mode          query     string  true  "Subscription mode"
// @Param        hub.verify_token  query     string  true  "Verification token"
// @Param        hub.challenge     query     string  true  "Challenge to echo"
// @Success      200               {string}  string
// @Failure      403               {string}  string
// @Router       /webhooks/whatsapp [get]
func (h *Handler) VerifyMetaWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && h.verifyToken != "" && token == h.verifyToken {
		h.Logger.InfowCtx(c.Request.Context(), "WhatsApp webhook verified successfully")
		c.String(http.StatusOK, challenge)
		return
	}

	h.Logger.ErrorwCtx(c.Request.Context(), "Failed to verify WhatsApp webhook", "mode", mode)
	c.Status(http.StatusForbidden)
}

// MetaWebhook godoc
// @Summary      Receive WhatsApp Cloud API events
// @Description  Relays completed WhatsApp Flow replies; every other event is acknowledged and ignored
// @Tags         webhooks
// @Accept       json
// @Param        payload  body  MetaWebhookPayload  true  "Webhook envelope"
// @Success      200
// @Router       /webhooks/whatsapp [post]
func (h *Handler) MetaWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	h.Logger.InfowCtx(ctx, "WhatsApp webhook event received")

	raw, err := readBody(c)
	if err != nil {
		h.Logger.WarnwCtx(ctx, "Unable to read WhatsApp webhook body", "error", err)
		c.Status(http.StatusOK)
		return
	}

	if err := h.Service.HandleIncomingMetaMessage(ctx, raw); err != nil {
		h.Logger.ErrorwCtx(ctx, "WhatsApp webhook processing failed", "error", err)
	}
	c.Status(http.StatusOK)
}

// TwilioSurveyWebhook godoc
// @Summary      Receive a Twilio Studio survey result
// @Description  Relays the final payload of the Twilio Studio survey flow
// @Tags         webhooks
// @Accept       json
// @Param        X-Token  header  string  true  "Shared Studio token"
// @Param        payload  body    TwilioSurveyPayload  true  "Studio payload"
// @Success      204
// @Failure      401      {object}  errors.ErrorResponse
// @Failure      403      {object}  errors.ErrorResponse
// @Router       /webhooks/twilio [post]
func (h *Handler) TwilioSurveyWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	h.Logger.InfowCtx(ctx, "Twilio Studio webhook received")

	raw, err := readBody(c)
	if err != nil {
		h.Logger.WarnwCtx(ctx, "Unable to read Twilio Studio webhook body", "error", err)
		c.Status(http.StatusNoContent)
		return
	}

	h.Service.HandleIncomingTwilioSurvey(ctx, raw)
	c.Status(http.StatusNoContent)
}

// TwilioStatusWebhook godoc
// @Summary      Receive a Twilio delivery status callback
// @Description  Counts and logs message delivery states; accepts form or JSON bodies
// @Tags         webhooks
// @Accept       x-www-form-urlencoded
// @Accept       json
// @Param        payload  body  TwilioStatusCallback  true  "Status callback"
// @Success      204
// @Router       /webhooks/twilio-status [post]
func (h *Handler) TwilioStatusWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := readBody(c)
	if err != nil {
		h.Logger.WarnwCtx(ctx, "Unable to read Twilio status body", "error", err)
		c.Status(http.StatusNoContent)
		return
	}

	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		if raw, err = formToJSON(raw); err != nil {
			h.Logger.WarnwCtx(ctx, "Unable to parse Twilio status form", "error", err)
			c.Status(http.StatusNoContent)
			return
		}
	}

	h.Service.HandleTwilioStatusUpdate(ctx, raw)
	c.Status(http.StatusNoContent)
}

func chain(guards []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(guards)+1)
	handlers = append(handlers, guards...)
	return append(handlers, handler)
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, middleware.MaxBodyBytes))
}

// formToJSON flattens a Twilio form post into a JSON object keeping the first
// value of each field.
func formToJSON(raw []byte) ([]byte, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}

	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return json.Marshal(flat)
}
