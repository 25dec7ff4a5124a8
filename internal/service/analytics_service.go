package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/repository"
	"go.uber.org/zap"
)

var ErrInvalidPeriod = errors.New("невалидный период")

// Константы агрегатора
const (
	recentClicksLimit = 10
	topReferersLimit  = 10
	topLinksLimit     = 20
	dailyStatsDays    = 7
)

// Все временные корзины считаются в UTC - одна зона на весь сервис,
// иначе ряды из разных запросов не совпадают по границам дней
var reportingZone = time.UTC

// AnalyticsService чистые запросы над журналом кликов: ничего не мутируют,
// на пустом журнале отдают нулевые структуры, а не ошибки
type AnalyticsService interface {
	GetLinkStats(ctx context.Context, code string) (*models.LinkStats, error)
	GetAccountStats(ctx context.Context, userID *string) (*models.AccountStats, error)
	// GetPeriodSeries отдаёт плотный ряд фиксированной длины:
	// week - 7 дней, month - 30 дней, year - 12 месяцев
	GetPeriodSeries(ctx context.Context, userID *string, period string) ([]models.PeriodPoint, error)
	GetBreakdown(ctx context.Context, code string, dimension string) ([]models.BreakdownEntry, error)
}

type analyticsService struct {
	linkRepo  repository.LinkRepository
	clickRepo repository.ClickRepository
	logger    *zap.Logger
}

func NewAnalyticsService(linkRepo repository.LinkRepository, clickRepo repository.ClickRepository, logger *zap.Logger) AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &analyticsService{
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		logger:    logger,
	}
}

// GetLinkStats собирает сводку по одной ссылке
func (s *analyticsService) GetLinkStats(ctx context.Context, code string) (*models.LinkStats, error) {
	linkID, err := s.linkRepo.GetIDByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}

	total, err := s.clickRepo.CountByLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	recent, err := s.clickRepo.RecentByLink(ctx, linkID, recentClicksLimit)
	if err != nil {
		return nil, err
	}

	since := startOfDay(time.Now().In(reportingZone)).AddDate(0, 0, -(dailyStatsDays - 1))
	counts, err := s.clickRepo.CountByDaySince(ctx, linkID, since)
	if err != nil {
		return nil, err
	}

	referers, err := s.clickRepo.TopReferers(ctx, linkID, topReferersLimit)
	if err != nil {
		return nil, err
	}

	return &models.LinkStats{
		ShortCode:    code,
		TotalClicks:  total,
		RecentClicks: recent,
		DailyStats:   fillDaily(since, dailyStatsDays, counts),
		TopReferers:  referers,
	}, nil
}

// GetAccountStats сводка по аккаунту; nil userID означает глобальный rollup
func (s *analyticsService) GetAccountStats(ctx context.Context, userID *string) (*models.AccountStats, error) {
	totalLinks, err := s.linkRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	totalClicks, err := s.clickRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	topLinks, err := s.clickRepo.TopLinksByUser(ctx, userID, topLinksLimit)
	if err != nil {
		return nil, err
	}

	return &models.AccountStats{
		TotalLinks:  totalLinks,
		TotalClicks: totalClicks,
		TopLinks:    topLinks,
	}, nil
}

// GetPeriodSeries строит временной ряд за период. Пустые корзины
// присутствуют с нулём: потребители рассчитывают на плотный ряд
// фиксированной длины.
func (s *analyticsService) GetPeriodSeries(ctx context.Context, userID *string, period string) ([]models.PeriodPoint, error) {
	now := time.Now().In(reportingZone)

	switch period {
	case "week", "month":
		days := 7
		if period == "month" {
			days = 30
		}
		since := startOfDay(now).AddDate(0, 0, -(days - 1))
		counts, err := s.clickRepo.CountByDayForUser(ctx, userID, since)
		if err != nil {
			return nil, err
		}
		series := make([]models.PeriodPoint, 0, days)
		for _, stat := range fillDaily(since, days, counts) {
			series = append(series, models.PeriodPoint{Label: stat.Date, Clicks: stat.Clicks})
		}
		return series, nil

	case "year":
		since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, reportingZone).AddDate(0, -11, 0)
		counts, err := s.clickRepo.CountByMonthForUser(ctx, userID, since)
		if err != nil {
			return nil, err
		}
		series := make([]models.PeriodPoint, 0, 12)
		for i := 0; i < 12; i++ {
			month := since.AddDate(0, i, 0)
			label := month.Format("2006-01")
			series = append(series, models.PeriodPoint{Label: label, Clicks: counts[label]})
		}
		return series, nil

	default:
		return nil, ErrInvalidPeriod
	}
}

// GetBreakdown категориальная разбивка по измерению; NULL значения
// возвращаются корзиной "Unknown", сумма корзин равна общему числу кликов
func (s *analyticsService) GetBreakdown(ctx context.Context, code string, dimension string) ([]models.BreakdownEntry, error) {
	linkID, err := s.linkRepo.GetIDByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}

	entries, err := s.clickRepo.GroupByDimension(ctx, linkID, dimension)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownDimension) {
			return nil, repository.ErrUnknownDimension
		}
		return nil, err
	}

	return entries, nil
}

// fillDaily разворачивает разреженные счётчики в плотный ряд по дням
func fillDaily(since time.Time, days int, counts map[string]int64) []models.DailyStat {
	stats := make([]models.DailyStat, 0, days)
	for i := 0; i < days; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		stats = append(stats, models.DailyStat{Date: date, Clicks: counts[date]})
	}
	return stats
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
