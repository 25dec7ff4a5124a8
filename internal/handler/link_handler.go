package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/akarpov/linkpulse/internal/enrich"
	"github.com/akarpov/linkpulse/internal/middleware"
	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/service"
	"github.com/akarpov/linkpulse/internal/shortcode"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service        service.LinkService
	clickProcessor service.ClickProcessor
	baseURL        string
	logger         *zap.Logger
}

func NewLinkHandler(service service.LinkService, clickProcessor service.ClickProcessor, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service:        service,
		clickProcessor: clickProcessor,
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         logger,
	}
}

type CreateLinkRequest struct {
	URL         string  `json:"url" binding:"required"`
	CustomAlias *string `json:"custom_alias,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ExpiresIn   *int    `json:"expires_in,omitempty"` // минуты
}

type LinkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClickCount  int64      `json:"click_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *LinkHandler) toResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID.String(),
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		Title:       link.Title,
		Description: link.Description,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
		ClickCount:  link.ClickCount,
	}
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new shortened URL, optionally under a custom alias
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.CreateLinkInput{
		OriginalURL: req.URL,
		CustomAlias: req.CustomAlias,
		Title:       req.Title,
		Description: req.Description,
		ExpiresIn:   req.ExpiresIn,
		UserID:      middleware.AccountIDFromContext(c),
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		h.respondCreateError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

// respondCreateError транслирует ошибки создания в HTTP статусы:
// проблемы входа - 400, занятый alias - 409, остальное - 500
func (h *LinkHandler) respondCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shortcode.ErrInvalidURL), errors.Is(err, shortcode.ErrSuspiciousURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: err.Error(),
		})
	case errors.Is(err, shortcode.ErrInvalidAlias), errors.Is(err, shortcode.ErrReservedAlias):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_alias",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrAliasTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "alias_taken",
			Message: "Alias уже занят",
		})
	default:
		h.logger.Error("Failed to create link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create link",
		})
	}
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Redirect to the original URL by short code
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 307 {object} nil
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	destination, err := h.service.ResolveRedirect(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Ссылка не найдена или истекла",
			})
			return
		}
		h.logger.Error("Failed to resolve link", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to resolve link",
		})
		return
	}

	// Асинхронная запись клика: редирект не ждёт аналитику
	h.clickProcessor.Enqueue(&models.ClickEvent{
		ShortCode: code,
		IP:        enrich.ExtractClientIP(c.Request.Header, c.Request.RemoteAddr),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		Consent:   analyticsConsent(c),
	})

	c.Redirect(http.StatusTemporaryRedirect, destination)
}

// analyticsConsent читает заголовок X-Analytics-Consent; отсутствие
// заголовка трактуется как согласие
func analyticsConsent(c *gin.Context) bool {
	switch strings.ToLower(c.GetHeader("X-Analytics-Consent")) {
	case "0", "false", "denied", "no":
		return false
	default:
		return true
	}
}

// ListLinks godoc
// @Summary List links of the authenticated account
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context(), middleware.AccountIDFromContext(c))
	if err != nil {
		h.logger.Error("Failed to list links", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list links",
		})
		return
	}

	responses := make([]LinkResponse, 0, len(links))
	for i := range links {
		responses = append(responses, h.toResponse(&links[i]))
	}

	c.JSON(http.StatusOK, responses)
}

// DeleteLink godoc
// @Summary Delete a short link
// @Description Delete a shortened URL by short code together with its clicks
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	err := h.service.DeleteLink(c.Request.Context(), code, middleware.AccountIDFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Ссылка не найдена",
			})
			return
		}
		h.logger.Error("Failed to delete link", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ссылка удалена"})
}

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
