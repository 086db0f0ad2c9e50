package router

import (
	"time"

	"somahub/config"
	"somahub/internal/domain"
	"somahub/internal/handler"
	"somahub/internal/middleware"
	"somahub/internal/repository"
	"somahub/internal/service"
	"somahub/pkg/cache"
	"somahub/pkg/payment"
	"somahub/pkg/rates"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps are the externally constructed collaborators. Anything left nil gets a
// production default.
type Deps struct {
	Provider   payment.Provider
	RateSource rates.Source
	RateCache  cache.Cache
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(100, 60*time.Second)))

	if deps.Provider == nil {
		deps.Provider = payment.NewDarajaProvider(
			cfg.Mpesa.BaseURL, cfg.Mpesa.ConsumerKey, cfg.Mpesa.ConsumerSecret,
			cfg.Mpesa.ShortCode, cfg.Mpesa.Passkey, cfg.Mpesa.Timeout,
		)
	}
	if deps.RateSource == nil {
		deps.RateSource = rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.APIKey, cfg.Rates.CallTimeout)
	}
	if deps.RateCache == nil {
		deps.RateCache = cache.NewMemory()
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	ratesSvc := service.NewRatesService(deps.RateSource, deps.RateCache, cfg.Rates.CacheTTL)
	enrollSvc := service.NewEnrollmentService(courseRepo, progressRepo)
	progressSvc := service.NewProgressService(progressRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseRepo)
	paymentHandler := handler.NewPaymentHandler(cfg, txRepo, tokenRepo, courseRepo, ratesSvc, enrollSvc, deps.Provider)
	webhookHandler := handler.NewMpesaWebhookHandler(txRepo, tokenRepo, enrollSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)
	optionalAuthMw := middleware.OptionalAuth(&cfg.JWT)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		courses := api.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.GET("/:id", courseHandler.Get)
			courses.POST("", authMw, middleware.RequireRole(domain.RoleAdmin), courseHandler.Create)
			courses.GET("/:id/progress", authMw, progressHandler.Get)
			courses.PUT("/:id/progress", authMw, progressHandler.Update)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/initiate", optionalAuthMw, paymentHandler.Initiate)
			payments.GET("/:reference", optionalAuthMw, paymentHandler.Status)
		}

		api.GET("/me/enrollments", authMw, courseHandler.MyEnrollments)

		// Inbound from the provider; authenticated by the single-use token.
		api.POST("/webhooks/mpesa/:token", webhookHandler.Handle)
	}
	return r
}
