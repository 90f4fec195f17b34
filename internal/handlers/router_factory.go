package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"exercisesapp/internal/config"
	"exercisesapp/internal/middleware"
	"exercisesapp/internal/observability"
	"exercisesapp/internal/services"
)

// NewRouter assembles the gin engine with middleware and all API routes.
func NewRouter(
	cfg *config.Config,
	userService *services.UserService,
	exerciseService *services.ExerciseService,
	feedbackService *services.FeedbackService,
	logger *observability.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// HTTP request logging through the observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "exercises-backend"})
	})

	router.Use(observability.GinMiddlewareWithErrorHandling("exercises-backend"))

	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(config.SessionName, store))

	router.Use(secure.New(secure.Config{
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: config.DefaultCSP,
	}))

	authHandler := NewAuthHandler(userService, logger)
	exerciseHandler := NewExerciseHandler(exerciseService, logger)
	responseHandler := NewResponseHandler(exerciseService, feedbackService, logger)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", authHandler.Me)
		}

		v1.GET("/languages", exerciseHandler.ListLanguages)
		v1.GET("/proficiency-levels", exerciseHandler.ListProficiencyLevels)

		authed := v1.Group("")
		authed.Use(middleware.RequireAuth())
		{
			authed.POST("/exercises", exerciseHandler.Create)
			authed.GET("/exercises", exerciseHandler.List)
			authed.GET("/exercises/:id", exerciseHandler.Get)
			authed.PATCH("/exercises/:id", exerciseHandler.UpdateVisibility)
			authed.DELETE("/exercises/:id", exerciseHandler.Delete)

			authed.POST("/questions/:id/responses", responseHandler.Submit)
		}
	}

	return router
}
