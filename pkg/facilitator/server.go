package facilitator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/facilitatorauth"
	"github.com/x402-foundation/botgate/pkg/types"
)

const (
	// DefaultVerifyTimeout bounds one /verify request.
	DefaultVerifyTimeout = 10 * time.Second
	// DefaultSettleTimeout bounds one /settle request, receipt wait included.
	DefaultSettleTimeout = 90 * time.Second

	// RequestIDHeader is echoed back on every response.
	RequestIDHeader = "X-Request-ID"
)

type requestIDKey struct{}

// RequestIDFromContext returns the id the router assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger *slog.Logger
	// AuthSecret, when set, requires a bearer token minted by facilitatorauth on the
	// payment endpoints.
	AuthSecret    string
	VerifyTimeout time.Duration
	SettleTimeout time.Duration
}

// NewRouter builds the HTTP surface of f.
func NewRouter(f *Facilitator, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(opts.Logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		supported := f.Supported()
		networks := make([]string, 0, len(supported.Kinds))
		for _, kind := range supported.Kinds {
			networks = append(networks, kind.Network)
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"networks": networks,
		})
	})

	authorized := router.Group("/")
	if opts.AuthSecret != "" {
		authorized.Use(authMiddleware(opts.AuthSecret))
	}

	authorized.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, f.Supported())
	})

	authorized.POST("/verify", func(c *gin.Context) {
		var req types.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.VerifyTimeout)
		defer cancel()

		result := f.Verify(ctx, &req)
		if result.Outcome == x402.OutcomeFault {
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{
				Error:   x402.ErrCodeFacilitatorFailure,
				Message: result.Reason,
			})
			return
		}
		c.JSON(http.StatusOK, result.Value)
	})

	authorized.POST("/settle", func(c *gin.Context) {
		var req types.SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.SettleTimeout)
		defer cancel()

		result := f.Settle(ctx, &req)
		switch result.Outcome {
		case x402.OutcomeFault:
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{
				Error:   x402.ErrCodeFacilitatorFailure,
				Message: result.Reason,
			})
		case x402.OutcomeConflict:
			c.JSON(http.StatusConflict, result.Value)
		default:
			c.JSON(http.StatusOK, result.Value)
		}
	})

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an id set upstream (load balancer, resource server).
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", RequestIDFromContext(c.Request.Context()),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := facilitatorauth.ValidateToken(secret, c.GetHeader("Authorization"), c.Request.Method, c.Request.URL.Path)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Error:   "unauthorized",
				Message: err.Error(),
			})
			return
		}
		c.Next()
	}
}
