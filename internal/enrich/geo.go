package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LocalCountry возвращается для приватных/loopback адресов
const LocalCountry = "Local"

// CountryResolver отдаёт страну по IP; реализации обязаны отвечать за
// ограниченное время и деградировать в Unknown вместо ошибок наверх
type CountryResolver interface {
	Country(ctx context.Context, ip string) string
}

// GeoClientConfig параметры клиента геолокации
type GeoClientConfig struct {
	APIEndpoint string        // например http://ip-api.com/json
	CacheTTL    time.Duration // TTL кэша на IP (бёрсты с одного адреса не бьют по внешнему API)
	Timeout     time.Duration
	MaxPerMin   int // лимит внешнего API
}

// GeoClient резолвит страну через публичный API с кэшем в Redis.
// Кэш и троттлинг обязательны: внешний сервис бесплатный и лимитированный.
type GeoClient struct {
	config  GeoClientConfig
	redis   *redis.Client
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGeoClient(config GeoClientConfig, redisClient *redis.Client, logger *zap.Logger) *GeoClient {
	perSecond := rate.Limit(float64(config.MaxPerMin) / 60.0)
	return &GeoClient{
		config:  config,
		redis:   redisClient,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(perSecond, config.MaxPerMin),
		logger:  logger,
	}
}

type geoAPIResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
}

// Country возвращает страну для IP. Приватные адреса дают "Local", любой
// сбой (таймаут, лимит, кривой ответ) - "Unknown". Никогда не возвращает ошибку.
func (g *GeoClient) Country(ctx context.Context, ip string) string {
	if IsPrivateIP(ip) {
		return LocalCountry
	}

	cacheKey := "geo:" + ip
	if cached, err := g.redis.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
		return cached
	}

	country := g.lookup(ctx, ip)

	if err := g.redis.Set(ctx, cacheKey, country, g.config.CacheTTL).Err(); err != nil {
		g.logger.Debug("Не удалось закэшировать геолокацию", zap.String("ip", ip), zap.Error(err))
	}

	return country
}

func (g *GeoClient) lookup(ctx context.Context, ip string) string {
	// Не ждём слот у троттлера: лучше Unknown, чем блокировка записи клика
	if !g.limiter.Allow() {
		g.logger.Debug("Лимит внешнего geo API исчерпан", zap.String("ip", ip))
		return Unknown
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s?fields=status,country", g.config.APIEndpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown
	}

	resp, err := g.http.Do(req)
	if err != nil {
		g.logger.Debug("Geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return Unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown
	}

	var data geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Unknown
	}
	if data.Status != "success" || data.Country == "" {
		return Unknown
	}

	return data.Country
}
