package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akarpov/linkpulse/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimiter_Middleware проверяет работу rate limiter middleware
func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       15 * time.Minute,
		GeneralLimit: 5,
		CreateLimit:  2,
	}, middleware.NewMemoryCounterStore(), nil)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Первые 5 запросов должны пройти
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "203.0.113.10:1234"
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Шестой запрос в том же окне должен быть отклонён
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "203.0.113.10:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

// TestRateLimiter_Headers проверяет заголовки X-RateLimit на успешном запросе
func TestRateLimiter_Headers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       15 * time.Minute,
		GeneralLimit: 10,
		CreateLimit:  2,
	}, middleware.NewMemoryCounterStore(), nil)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "203.0.113.10:1234"
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

// TestRateLimiter_SeparateIdentities проверяет независимость лимитов по клиентам
func TestRateLimiter_SeparateIdentities(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       15 * time.Minute,
		GeneralLimit: 2,
		CreateLimit:  2,
	}, middleware.NewMemoryCounterStore(), nil)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Клиент 1 исчерпывает лимит
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Клиент 2 не задет чужим лимитом
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestRateLimiter_ScopeBudgets проверяет независимость бюджетов general и create
func TestRateLimiter_ScopeBudgets(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       15 * time.Minute,
		GeneralLimit: 100,
		CreateLimit:  2,
	}, middleware.NewMemoryCounterStore(), nil)

	ctx := context.Background()

	// Исчерпываем create-бюджет
	for i := 0; i < 2; i++ {
		result := rl.Check(ctx, middleware.ScopeCreate, "1.2.3.4")
		require.True(t, result.Allowed)
	}
	result := rl.Check(ctx, middleware.ScopeCreate, "1.2.3.4")
	assert.False(t, result.Allowed)
	assert.Equal(t, 2, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))

	// General для той же идентичности не задет
	result = rl.Check(ctx, middleware.ScopeGeneral, "1.2.3.4")
	assert.True(t, result.Allowed)
	assert.Equal(t, 100, result.Limit)
}

// TestRateLimiter_WindowReset проверяет сброс счётчика по истечении окна
func TestRateLimiter_WindowReset(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       50 * time.Millisecond,
		GeneralLimit: 1,
		CreateLimit:  1,
	}, middleware.NewMemoryCounterStore(), nil)

	ctx := context.Background()

	result := rl.Check(ctx, middleware.ScopeGeneral, "1.2.3.4")
	require.True(t, result.Allowed)

	result = rl.Check(ctx, middleware.ScopeGeneral, "1.2.3.4")
	require.False(t, result.Allowed)

	// Новое окно начинается с чистого счётчика
	time.Sleep(60 * time.Millisecond)
	result = rl.Check(ctx, middleware.ScopeGeneral, "1.2.3.4")
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

// TestAPIKey_Middleware проверяет аутентификацию по API ключу
func TestAPIKey_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	validKeys := map[string]string{
		"test-key-1": "account-1",
		"test-key-2": "account-2",
	}

	ak := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys:  validKeys,
		HeaderName: "X-API-Key",
		Optional:   false,
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Запрос без API ключа должен быть отклонён
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Запрос с невалидным API ключом должен быть отклонён
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "invalid-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Запрос с валидным API ключом должен пройти
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "test-key-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAPIKey_AccountIdentity проверяет, что имя ключа становится идентификатором аккаунта
func TestAPIKey_AccountIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ak := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys: map[string]string{"test-key-1": "account-1"},
		Optional:  true,
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		account := middleware.AccountIDFromContext(c)
		if account == nil {
			c.JSON(http.StatusOK, gin.H{"account": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": *account})
	})

	// Анонимный запрос: аккаунт отсутствует
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"account":null`)

	// Аутентифицированный запрос: аккаунт из имени ключа
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "test-key-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"account":"account-1"`)
}

// TestAPIKey_Middleware_QueryParam проверяет передачу API ключа через query параметр
func TestAPIKey_Middleware_QueryParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ak := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys:  map[string]string{"test-key-1": "account-1"},
		HeaderName: "X-API-Key",
		Optional:   false,
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test?api_key=test-key-1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAPIKey_Middleware_BearerToken проверяет передачу API ключа через Bearer токен
func TestAPIKey_Middleware_BearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ak := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys:  map[string]string{"test-key-1": "account-1"},
		HeaderName: "X-API-Key",
		Optional:   false,
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer test-key-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
