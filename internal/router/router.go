package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/config"
	"github.com/xsuryanshx/cognitive-load/internal/handlers"
	"github.com/xsuryanshx/cognitive-load/internal/models"
	"github.com/xsuryanshx/cognitive-load/internal/repository"
	"github.com/xsuryanshx/cognitive-load/internal/session"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again later.")
}

// Setup wires the middleware stack and all routes.
func Setup(log *zap.Logger, registry *session.Registry, users *repository.UserStore, bank *models.SentenceBank) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	// CORS for the browser client.
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.Conf.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	// Handlers and routes
	authHandler := handlers.NewAuthHandler(log, users)
	sessionHandler := handlers.NewSessionHandler(log, registry, bank)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: rateLimitErrorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Keystroke Capture Platform API",
			"version": "1.0.0",
		})
	})
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"data_dir": config.Conf.Storage.DataDir,
		})
	})

	router.POST("/api/auth/register", limiter, authHandler.Register)
	router.POST("/api/auth/login", limiter, authHandler.Login)

	authorized := router.Group("/api")
	authorized.Use(AuthRequired(log, users))
	{
		authorized.GET("/auth/me", authHandler.Me)
		authorized.GET("/sentences", sessionHandler.Sentences)

		authorized.POST("/session", sessionHandler.CreateSession)
		authorized.GET("/session/:test_section_id/stats", sessionHandler.SessionStats)
		authorized.POST("/test-section", sessionHandler.CreateTestSection)
		authorized.POST("/keystrokes", sessionHandler.SubmitKeystrokes)
		authorized.POST("/sentence-complete", sessionHandler.SentenceComplete)
		authorized.POST("/end-test", sessionHandler.EndTest)
	}

	return router
}
