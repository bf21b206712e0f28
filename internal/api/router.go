package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/platform/mercadopago"
)

// RouterConfig carries the settings the router and its middleware need.
type RouterConfig struct {
	GinMode          string
	AllowedOrigin    string
	JWTSecret        string
	WebhookValidator *mercadopago.WebhookValidator
	// RequireSignature rejects webhooks when no signature secret is configured.
	RequireSignature bool
	Gatherer         prometheus.Gatherer
	Logger           *zap.Logger
}

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := cfg.WebhookValidator
	if validator == nil {
		validator = mercadopago.NewWebhookValidator("")
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger.Named("http")))
	router.Use(CORSMiddleware(cfg.AllowedOrigin))

	// Health check endpoint (no auth required)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	pagos := router.Group("/api/pagos")
	{
		// This endpoint is called by Mercado Pago, so no JWT required
		// Security is handled by validating the webhook signature
		pagos.POST("/webhook", WebhookSecurityMiddleware(validator, cfg.RequireSignature, logger.Named("webhook")), handler.HandleWebhook)

		tutor := pagos.Group("", JWTAuthMiddleware(cfg.JWTSecret))
		{
			tutor.POST("/suscripcion", handler.CreateMembershipCheckout)
			tutor.POST("/curso", handler.CreateCourseCheckout)
			tutor.GET("/membresia", handler.GetCurrentMembership)
			tutor.GET("/membresia/:id/estado", handler.GetMembershipStatus)
			tutor.POST("/mock/activar-membresia/:id", handler.ManualActivateMembership)
			tutor.GET("/inscripciones", handler.ListEnrollments)
			tutor.GET("/historial", handler.GetHistory)
		}
	}

	return router
}
