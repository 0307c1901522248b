// Package ginmw provides Gin HTTP middleware for caller authentication.
//
// All middleware functions accept a reservation.TokenVerifier; no direct
// dependency on any specific key source.
package ginmw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/audit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys for storing caller data in gin.Context.
const (
	KeyIdentity  = "reservation_identity"
	KeyClaims    = "reservation_claims"
	KeyRequestID = "request_id"
)

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// Error codes written by the middleware.
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeUnauthorized     = "UNAUTHORIZED"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ClaimsVerifier is implemented by verifiers that expose the full claim set.
type ClaimsVerifier interface {
	VerifyClaims(ctx context.Context, token string) (*reservation.Claims, error)
}

// AuthOption configures Authenticate.
type AuthOption func(*authConfig)

type authConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for rejected credentials.
func WithLogger(l *slog.Logger) AuthOption {
	return func(cfg *authConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// Authenticate returns Gin middleware that resolves the caller identity.
//
// A request without a bearer credential is anonymous on optional routes and
// rejected with 403 on required ones, unless the verifier accepts the empty
// token (verification disabled). A credential that fails verification is
// rejected with 401 on every route.
func Authenticate(verifier reservation.TokenVerifier, required bool, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		raw := extractBearerToken(c.Request)

		identity, claims, err := verify(ctx, verifier, raw)
		switch {
		case err == nil:
		case raw == "" && errors.Is(err, reservation.ErrMissingCredentials):
			if required {
				WriteErrorCode(c, http.StatusForbidden, CodeNotAuthenticated, "Not authenticated")
				return
			}
			identity = reservation.Anonymous
		default:
			cfg.logger.WarnContext(ctx, "rejected bearer token",
				"path", c.FullPath(), "reason", reservation.AuthKind(err).String())
			c.Header("WWW-Authenticate", "Bearer")
			WriteErrorCode(c, http.StatusUnauthorized, CodeUnauthorized, "Could not validate credentials")
			return
		}

		c.Set(KeyIdentity, identity)
		ctx = reservation.WithIdentity(ctx, identity)
		if claims != nil {
			c.Set(KeyClaims, claims)
			ctx = reservation.WithClaims(ctx, claims)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequestID returns Gin middleware that propagates X-Request-ID, generating
// one when absent, and attaches it to audit events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(KeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(audit.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog returns Gin middleware that logs one line per request.
func AccessLog(l *slog.Logger) gin.HandlerFunc {
	if l == nil {
		l = slog.Default()
	}
	return func(c *gin.Context) {
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"request_id", GetRequestID(c),
		)
	}
}

// --- Context helpers ---

// GetIdentity returns the caller identity from the Gin context, or
// Anonymous when Authenticate did not run.
func GetIdentity(c *gin.Context) reservation.Identity {
	v, ok := c.Get(KeyIdentity)
	if !ok {
		return reservation.Anonymous
	}
	id, ok := v.(reservation.Identity)
	if !ok {
		return reservation.Anonymous
	}
	return id
}

// GetClaims returns the full claims from the Gin context.
func GetClaims(c *gin.Context) *reservation.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*reservation.Claims)
	return cl
}

// GetRequestID returns the request id from the Gin context.
func GetRequestID(c *gin.Context) string {
	v, _ := c.Get(KeyRequestID)
	s, _ := v.(string)
	return s
}

// WriteErrorCode aborts the request with an ErrorResponse.
func WriteErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// --- internal helpers ---

func verify(ctx context.Context, v reservation.TokenVerifier, raw string) (reservation.Identity, *reservation.Claims, error) {
	if cv, ok := v.(ClaimsVerifier); ok {
		claims, err := cv.VerifyClaims(ctx, raw)
		if err != nil {
			return reservation.Identity{}, nil, err
		}
		return claims.Identity(), claims, nil
	}
	id, err := v.Verify(ctx, raw)
	return id, nil, err
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
