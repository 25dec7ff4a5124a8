package handler

import (
	"errors"
	"net/http"

	"github.com/akarpov/linkpulse/internal/middleware"
	"github.com/akarpov/linkpulse/internal/repository"
	"github.com/akarpov/linkpulse/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  *zap.Logger
}

func NewAnalyticsHandler(service service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger,
	}
}

// GetLinkStats godoc
// @Summary Get click statistics for a short link
// @Description Total clicks, recent clicks, 7-day daily series and top referers
// @Tags analytics
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} models.LinkStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code}/stats [get]
func (h *AnalyticsHandler) GetLinkStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.service.GetLinkStats(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Ссылка не найдена",
			})
			return
		}
		h.logger.Error("Failed to get link stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetBreakdown godoc
// @Summary Get categorical click breakdown
// @Description Click counts grouped by country, device, browser or os
// @Tags analytics
// @Produce json
// @Param code path string true "Short code"
// @Param dimension query string true "Dimension: country | device | browser | os"
// @Success 200 {array} models.BreakdownEntry
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code}/stats/breakdown [get]
func (h *AnalyticsHandler) GetBreakdown(c *gin.Context) {
	code := c.Param("code")
	dimension := c.Query("dimension")

	entries, err := h.service.GetBreakdown(c.Request.Context(), code, dimension)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUnknownDimension):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_dimension",
				Message: "Допустимые измерения: country, device, browser, os",
			})
		case errors.Is(err, service.ErrLinkNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Ссылка не найдена",
			})
		default:
			h.logger.Error("Failed to get breakdown", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to get breakdown",
			})
		}
		return
	}

	c.JSON(http.StatusOK, entries)
}

// GetAccountStats godoc
// @Summary Get aggregate statistics for the authenticated account
// @Tags analytics
// @Produce json
// @Success 200 {object} models.AccountStats
// @Router /api/v1/analytics/account [get]
func (h *AnalyticsHandler) GetAccountStats(c *gin.Context) {
	stats, err := h.service.GetAccountStats(c.Request.Context(), middleware.AccountIDFromContext(c))
	if err != nil {
		h.logger.Error("Failed to get account stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get account stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetPeriodSeries godoc
// @Summary Get a dense click time series for a period
// @Description week - 7 daily points, month - 30 daily points, year - 12 monthly points
// @Tags analytics
// @Produce json
// @Param period query string true "Period: week | month | year"
// @Success 200 {array} models.PeriodPoint
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/analytics/period [get]
func (h *AnalyticsHandler) GetPeriodSeries(c *gin.Context) {
	period := c.DefaultQuery("period", "week")

	series, err := h.service.GetPeriodSeries(c.Request.Context(), middleware.AccountIDFromContext(c), period)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_period",
				Message: "Допустимые периоды: week, month, year",
			})
			return
		}
		h.logger.Error("Failed to get period series", zap.String("period", period), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get period series",
		})
		return
	}

	c.JSON(http.StatusOK, series)
}
