package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"surveyrelay/internal/logger"
	apperrors "surveyrelay/pkg/errors"
	"surveyrelay/pkg/metrics"
)

const (
	ReasonMissingOrMalformed = "missing_or_malformed"
	ReasonInvalidToken       = "invalid_token"

	TwilioSignatureHeader = "X-Twilio-Signature"

	// MaxBodyBytes caps webhook bodies read by middleware and handlers.
	MaxBodyBytes = 1 << 20
)

var (
	errMissingToken = apperrors.ErrUnauthorized.WithMessage("Unauthorized: Missing or malformed token.")
	errInvalidToken = apperrors.ErrForbidden.WithMessage("Forbidden: Invalid token.")
	errBlockedIP    = apperrors.ErrForbidden.WithMessage("Forbidden: Access denied.")
	errBadSignature = apperrors.ErrForbidden.WithMessage("Forbidden: Invalid request signature.")
)

// IPAllowlist rejects clients outside allowed. Entries may be single addresses
// or CIDR blocks. An empty list allows every client.
func IPAllowlist(allowed []string, log logger.Logger) gin.HandlerFunc {
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	ips := make(map[string]struct{})
	var networks []*net.IPNet
	for _, entry := range allowed {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			networks = append(networks, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips[ip.String()] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		ip := net.ParseIP(clientIP)
		if ip != nil {
			if _, ok := ips[ip.String()]; ok {
				c.Next()
				return
			}
			for _, network := range networks {
				if network.Contains(ip) {
					c.Next()
					return
				}
			}
		}

		metrics.IncBlockedIP(clientIP)
		log.WarnwCtx(c.Request.Context(), "Blocked request from IP outside allowlist", "ip", clientIP, "path", c.Request.URL.Path)
		abortWithError(c, errBlockedIP)
	}
}

// BearerAuth requires "Authorization: Bearer <token>".
func BearerAuth(token string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, provided, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || provided == "" {
			rejectToken(c, log, ReasonMissingOrMalformed, errMissingToken)
			return
		}

		if !tokensEqual(provided, token) {
			rejectToken(c, log, ReasonInvalidToken, errInvalidToken)
			return
		}

		c.Next()
	}
}

// HeaderToken requires header to carry exactly token.
func HeaderToken(header, token string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(header)
		if provided == "" {
			rejectToken(c, log, ReasonMissingOrMalformed, errMissingToken)
			return
		}

		if !tokensEqual(provided, token) {
			rejectToken(c, log, ReasonInvalidToken, errInvalidToken)
			return
		}

		c.Next()
	}
}

// SignatureValidator checks an X-Twilio-Signature value. It is satisfied by
// *client.RequestValidator from twilio-go.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// TwilioSignature verifies the request signature against callbackURL, the
// public URL Twilio was configured to call. Form parameters are restored on
// the request body for downstream handlers.
func TwilioSignature(validator SignatureValidator, callbackURL string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(TwilioSignatureHeader)
		if signature == "" {
			rejectToken(c, log, ReasonMissingOrMalformed, errMissingToken)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
		if err != nil {
			abortWithError(c, apperrors.ErrValidation.WithCause(err))
			return
		}
		if len(body) > MaxBodyBytes {
			abortWithError(c, apperrors.ErrPayloadTooLarge)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		params := map[string]string{}
		if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
			values, err := url.ParseQuery(string(body))
			if err != nil {
				abortWithError(c, apperrors.ErrValidation.WithCause(err))
				return
			}
			for k, v := range values {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
		}

		if !validator.Validate(callbackURL, params, signature) {
			metrics.IncInvalidAuthToken(ReasonInvalidToken)
			log.WarnwCtx(c.Request.Context(), "Rejected request with invalid Twilio signature", "path", c.Request.URL.Path)
			abortWithError(c, errBadSignature)
			return
		}

		c.Next()
	}
}

func rejectToken(c *gin.Context, log logger.Logger, reason string, err *apperrors.Error) {
	metrics.IncInvalidAuthToken(reason)
	log.WarnwCtx(c.Request.Context(), "Rejected request token", "reason", reason, "path", c.Request.URL.Path, "ip", c.ClientIP())
	abortWithError(c, err)
}

func abortWithError(c *gin.Context, err *apperrors.Error) {
	c.AbortWithStatusJSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
}

func tokensEqual(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

