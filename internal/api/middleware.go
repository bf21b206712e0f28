package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/platform/mercadopago"
)

const (
	requestIDKey = "request_id"
	tutorIDKey   = "tutor_id"

	// webhookDataIDKey holds the data.id whose signature was validated.
	webhookDataIDKey = "webhook_data_id"

	maxWebhookBody = 1 << 20
)

// CORSMiddleware handles Cross-Origin Resource Sharing.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")
		if allowedOrigin != "*" {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggerMiddleware logs every request once it has been served.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// JWTAuthMiddleware validates HS256 bearer tokens. The sub claim is the tutor id.
// Without a secret every request is rejected.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Authorization header required")
			return
		}
		if secret == "" {
			unauthorized(c, "Authentication is not configured")
			return
		}

		sub, err := tutorFromToken(parser, token, secret)
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}

		c.Set(tutorIDKey, sub)
		c.Next()
	}
}

func tutorFromToken(parser *jwt.Parser, tokenString, secret string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("token validation failed")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("subject claim missing")
	}
	return claims.Subject, nil
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    "UNAUTHORIZED",
	})
}

func tutorID(c *gin.Context) string {
	return c.GetString(tutorIDKey)
}

// WebhookSecurityMiddleware validates Mercado Pago webhook signatures.
// This ensures webhooks are actually coming from Mercado Pago. Without a
// secret, validation is skipped unless required is set. The body is bounded
// either way.
func WebhookSecurityMiddleware(validator *mercadopago.WebhookValidator, required bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)

		if !validator.Enabled() {
			if required {
				logger.Error("webhook rejected: signature secret not configured")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "invalid_signature"})
				return
			}
			c.Next()
			return
		}

		// Mercado Pago sends these headers for webhook validation:
		// x-signature: ts=timestamp,v1=signature
		// x-request-id: unique request ID
		dataID := c.Query("data.id")
		if dataID == "" {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "unreadable_body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			dataID = webhookDataID(body)
		}

		err := validator.Validate(c.GetHeader("x-signature"), c.GetHeader("x-request-id"), dataID)
		if err != nil {
			logger.Warn("webhook signature rejected",
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.String("data_id", dataID),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "invalid_signature"})
			return
		}

		c.Set(webhookDataIDKey, dataID)
		c.Next()
	}
}

func webhookDataID(body []byte) string {
	var payload struct {
		Data struct {
			ID any `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return stringID(payload.Data.ID)
}

// stringID normalizes ids that Mercado Pago sends either as strings or numbers.
func stringID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
