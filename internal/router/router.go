package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/config"
	"github.com/TheSimpleMango/ImagineFace/internal/handlers"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again later.")
}

func Setup(log *zap.Logger, dataDir string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(config.Conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("facetrace_session", store))
	router.Use(OperatorLoader())

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
	})

	authHandler := handlers.NewAuthHandler(log)
	resultsHandler := handlers.NewResultsHandler(log)
	importHandler := handlers.NewImportHandler(log, dataDir)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", func(c *gin.Context) {
		if _, isLoggedIn := c.Get(operatorContextKey); isLoggedIn {
			c.Redirect(http.StatusFound, "/participants")
			return
		}
		authHandler.ShowLoginPage(c)
	})

	router.POST("/login", limiter, authHandler.Login)
	router.POST("/logout", authHandler.Logout)

	authorized := router.Group("/")
	authorized.Use(AuthRequired())
	{
		authorized.GET("/participants", resultsHandler.ListParticipants)
		authorized.GET("/participants/:participant/charts", resultsHandler.ShowCharts)

		api := authorized.Group("/api")
		{
			api.GET("/participants/:participant/measurements", resultsHandler.GetMeasurements)
			api.GET("/participants/:participant/summaries", resultsHandler.GetSummaries)
			api.POST("/import", importHandler.ImportAll)
			api.POST("/import/:participant", importHandler.ImportParticipant)
		}
	}

	return router
}
