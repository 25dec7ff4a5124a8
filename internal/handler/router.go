package handler

import (
	"github.com/akarpov/linkpulse/internal/middleware"
	"github.com/akarpov/linkpulse/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	analyticsService service.AnalyticsService,
	clickProcessor service.ClickProcessor,
	rateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.Default()

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		)
		c.Next()
	})

	// Общий rate limit на все запросы
	router.Use(rateLimiter.Middleware())

	linkHandler := NewLinkHandler(linkService, clickProcessor, baseURL, logger)
	analyticsHandler := NewAnalyticsHandler(analyticsService, logger)

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		// Применяем API Key middleware только к защищенным эндпоинтам
		if apiKeyMiddleware != nil {
			v1.Use(apiKeyMiddleware)
		}

		// Создание под дополнительным, более жёстким лимитом
		v1.POST("/links", rateLimiter.CreateMiddleware(), linkHandler.CreateLink)
		v1.GET("/links", linkHandler.ListLinks)
		v1.DELETE("/links/:code", linkHandler.DeleteLink)
		v1.GET("/links/:code/stats", analyticsHandler.GetLinkStats)
		v1.GET("/links/:code/stats/breakdown", analyticsHandler.GetBreakdown)
		v1.GET("/analytics/account", analyticsHandler.GetAccountStats)
		v1.GET("/analytics/period", analyticsHandler.GetPeriodSeries)
	}

	// Редирект (корневой путь) - без API key проверки
	router.GET("/:code", linkHandler.Redirect)

	// Swagger документация (без аутентификации)
	AddSwaggerRoutes(router)

	return router
}
