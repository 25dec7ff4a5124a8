package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/google/uuid"
)

// Разрешённые измерения категориальных разбивок -> колонки таблицы clicks.
// Whitelist обязателен: имя измерения приходит снаружи и попадает в SQL.
var dimensionColumns = map[string]string{
	"country": "country",
	"device":  "device",
	"browser": "browser",
	"os":      "os",
}

var ErrUnknownDimension = errors.New("unknown breakdown dimension")

type ClickRepository interface {
	// RecordClick атомарно пишет событие и инкрементит денормализованный
	// счётчик ссылки в одной транзакции: счётчик и журнал не расходятся
	// даже под конкурентными кликами
	RecordClick(ctx context.Context, click *models.Click) error
	CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error)
	RecentByLink(ctx context.Context, linkID uuid.UUID, limit int) ([]models.Click, error)
	CountByDaySince(ctx context.Context, linkID uuid.UUID, since time.Time) (map[string]int64, error)
	TopReferers(ctx context.Context, linkID uuid.UUID, limit int) ([]models.RefererStat, error)
	GroupByDimension(ctx context.Context, linkID uuid.UUID, dimension string) ([]models.BreakdownEntry, error)
	CountByUser(ctx context.Context, userID *string) (int64, error)
	TopLinksByUser(ctx context.Context, userID *string, limit int) ([]models.TopLink, error)
	CountByDayForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error)
	CountByMonthForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

func (r *clickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin click transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO clicks (link_id, ip_hash, user_agent, referer, country, device, browser, os, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.Exec(ctx, insert,
		click.LinkID,
		click.IPHash,
		click.UserAgent,
		click.Referer,
		click.Country,
		click.Device,
		click.Browser,
		click.OS,
		click.ClickedAt,
	); err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	increment := `UPDATE links SET click_count = click_count + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, increment, click.LinkID); err != nil {
		return fmt.Errorf("failed to increment click counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit click transaction: %w", err)
	}

	return nil
}

func (r *clickRepository) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM clicks WHERE link_id = $1`, linkID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	return count, nil
}

func (r *clickRepository) RecentByLink(ctx context.Context, linkID uuid.UUID, limit int) ([]models.Click, error) {
	query := `
		SELECT id, link_id, ip_hash, user_agent, referer, country, device, browser, os, clicked_at
		FROM clicks
		WHERE link_id = $1
		ORDER BY clicked_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	defer rows.Close()

	clicks := []models.Click{}
	for rows.Next() {
		var c models.Click
		if err := rows.Scan(&c.ID, &c.LinkID, &c.IPHash, &c.UserAgent, &c.Referer,
			&c.Country, &c.Device, &c.Browser, &c.OS, &c.ClickedAt); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}

// CountByDaySince группирует клики по календарным дням UTC. Дни без кликов
// в результате отсутствуют: плотный ряд собирает сервис аналитики.
func (r *clickRepository) CountByDaySince(ctx context.Context, linkID uuid.UUID, since time.Time) (map[string]int64, error) {
	query := `
		SELECT to_char(clicked_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM clicks
		WHERE link_id = $1 AND clicked_at >= $2
		GROUP BY day
	`
	return r.countGrouped(ctx, query, linkID, since)
}

func (r *clickRepository) TopReferers(ctx context.Context, linkID uuid.UUID, limit int) ([]models.RefererStat, error) {
	query := `
		SELECT COALESCE(referer, 'Direct') AS ref, COUNT(*) AS cnt
		FROM clicks
		WHERE link_id = $1
		GROUP BY ref
		ORDER BY cnt DESC, MIN(id) ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top referers: %w", err)
	}
	defer rows.Close()

	stats := []models.RefererStat{}
	for rows.Next() {
		var s models.RefererStat
		if err := rows.Scan(&s.Referer, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan referer stat: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GroupByDimension считает разбивку по измерению; NULL значения попадают
// в корзину "Unknown", поэтому сумма корзин всегда равна общему числу кликов
func (r *clickRepository) GroupByDimension(ctx context.Context, linkID uuid.UUID, dimension string) ([]models.BreakdownEntry, error) {
	column, ok := dimensionColumns[dimension]
	if !ok {
		return nil, ErrUnknownDimension
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(%s, 'Unknown') AS value, COUNT(*) AS cnt
		FROM clicks
		WHERE link_id = $1
		GROUP BY value
		ORDER BY cnt DESC, MIN(id) ASC
	`, column)

	rows, err := r.db.Pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to group clicks by %s: %w", dimension, err)
	}
	defer rows.Close()

	entries := []models.BreakdownEntry{}
	for rows.Next() {
		var e models.BreakdownEntry
		if err := rows.Scan(&e.Value, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *clickRepository) CountByUser(ctx context.Context, userID *string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE $1::text IS NULL OR l.user_id = $1
	`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user clicks: %w", err)
	}
	return count, nil
}

func (r *clickRepository) TopLinksByUser(ctx context.Context, userID *string, limit int) ([]models.TopLink, error) {
	query := `
		SELECT short_code, original_url, click_count
		FROM links
		WHERE $1::text IS NULL OR user_id = $1
		ORDER BY click_count DESC, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top links: %w", err)
	}
	defer rows.Close()

	links := []models.TopLink{}
	for rows.Next() {
		var l models.TopLink
		if err := rows.Scan(&l.ShortCode, &l.OriginalURL, &l.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan top link: %w", err)
		}
		links = append(links, l)
	}

	return links, rows.Err()
}

func (r *clickRepository) CountByDayForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error) {
	query := `
		SELECT to_char(c.clicked_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE ($1::text IS NULL OR l.user_id = $1) AND c.clicked_at >= $2
		GROUP BY day
	`
	return r.countGrouped(ctx, query, userID, since)
}

func (r *clickRepository) CountByMonthForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error) {
	query := `
		SELECT to_char(c.clicked_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month, COUNT(*)
		FROM clicks c
		JOIN links l ON c.link_id = l.id
		WHERE ($1::text IS NULL OR l.user_id = $1) AND c.clicked_at >= $2
		GROUP BY month
	`
	return r.countGrouped(ctx, query, userID, since)
}

func (r *clickRepository) countGrouped(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan grouped count: %w", err)
		}
		counts[key] = count
	}

	return counts, rows.Err()
}
