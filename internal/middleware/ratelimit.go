package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/akarpov/linkpulse/internal/enrich"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Scope независимые бюджеты лимитера
type Scope string

const (
	// ScopeGeneral общий трафик (редиректы, чтение статистики)
	ScopeGeneral Scope = "general"
	// ScopeCreate создание ссылок; проверяется в дополнение к general
	ScopeCreate Scope = "create"
)

// RateLimiterConfig конфигурация fixed-window лимитера
type RateLimiterConfig struct {
	Window       time.Duration
	GeneralLimit int
	CreateLimit  int
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	Window:       15 * time.Minute,
	GeneralLimit: 100,
	CreateLimit:  20,
}

// Result ответ лимитера на один запрос
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // время до конца текущего окна
	ResetAt    time.Time
}

// CounterStore хранилище счётчиков окна. Incr создаёт запись с новым окном,
// если её нет или окно истекло, иначе инкрементит счётчик текущего окна.
// В одном инстансе достаточно памяти процесса; в multi-instance деплое
// нужен Redis, иначе эффективный лимит равен limit * число инстансов.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// --- In-memory store ---

type windowRecord struct {
	count   int64
	resetAt time.Time
}

// MemoryCounterStore потокобезопасный счётчик окон в памяти процесса
type MemoryCounterStore struct {
	mu      sync.Mutex
	records map[string]*windowRecord
}

func NewMemoryCounterStore() *MemoryCounterStore {
	s := &MemoryCounterStore{
		records: make(map[string]*windowRecord),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists || now.After(rec.resetAt) {
		rec = &windowRecord{count: 1, resetAt: now.Add(window)}
		s.records[key] = rec
		return 1, rec.resetAt, nil
	}

	rec.count++
	return rec.count, rec.resetAt, nil
}

// cleanupLoop периодически удаляет записи с истёкшим окном
func (s *MemoryCounterStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		s.mu.Lock()
		for key, rec := range s.records {
			if now.After(rec.resetAt) {
				delete(s.records, key)
			}
		}
		s.mu.Unlock()
	}
}

// --- Redis store ---

// RedisCounterStore счётчики в Redis: INCR + EXPIRE на первом запросе окна.
// Подходит для multi-instance деплоя.
type RedisCounterStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisCounterStore(client *redis.Client, keyPrefix string) *RedisCounterStore {
	return &RedisCounterStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	redisKey := s.keyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		// Первый запрос окна задаёт срок жизни ключа
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

// --- Limiter ---

// RateLimiter fixed-window лимитер с независимыми бюджетами по scope.
// Окно фиксированное, не скользящее: на границе окон возможен короткий
// бёрст до 2x лимита - осознанный размен на простоту.
type RateLimiter struct {
	config RateLimiterConfig
	store  CounterStore
	logger *zap.Logger
}

// NewRateLimiter создаёт лимитер поверх переданного хранилища счётчиков
func NewRateLimiter(config RateLimiterConfig, store CounterStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		config: config,
		store:  store,
		logger: logger,
	}
}

// Check применяет лимит scope к идентичности клиента
func (rl *RateLimiter) Check(ctx context.Context, scope Scope, identity string) Result {
	limit := rl.config.GeneralLimit
	if scope == ScopeCreate {
		limit = rl.config.CreateLimit
	}

	key := string(scope) + ":" + identity
	count, resetAt, err := rl.store.Incr(ctx, key, rl.config.Window)
	if err != nil {
		// Недоступное хранилище счётчиков не должно ронять трафик: fail-open
		rl.logger.Warn("Хранилище счётчиков недоступно, пропускаем запрос", zap.Error(err))
		return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(rl.config.Window)}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: time.Until(resetAt),
		ResetAt:    resetAt,
	}
}

// Middleware общий лимит на все запросы
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.middlewareForScope(ScopeGeneral)
}

// CreateMiddleware дополнительный, более жёсткий лимит на создание ссылок
func (rl *RateLimiter) CreateMiddleware() gin.HandlerFunc {
	return rl.middlewareForScope(ScopeCreate)
}

func (rl *RateLimiter) middlewareForScope(scope Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := enrich.ExtractClientIP(c.Request.Header, c.Request.RemoteAddr)
		result := rl.Check(c.Request.Context(), scope, identity)

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter / time.Second)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Слишком много запросов, попробуйте позже",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
