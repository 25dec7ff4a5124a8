package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	// GetActiveByShortCode фильтрует is_active и expires_at на уровне SQL,
	// чтобы не ловить гонку между проверкой и ответом
	GetActiveByShortCode(ctx context.Context, code string) (*models.Link, error)
	Exists(ctx context.Context, code string) (bool, error)
	GetIDByShortCode(ctx context.Context, code string) (uuid.UUID, error)
	Delete(ctx context.Context, code string, ownerID *string) error
	ListByUser(ctx context.Context, userID *string) ([]models.Link, error)
	CountByUser(ctx context.Context, userID *string) (int64, error)
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (id, short_code, original_url, custom_alias, title, description, is_active, expires_at, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ID,
		link.ShortCode,
		link.OriginalURL,
		link.CustomAlias,
		link.Title,
		link.Description,
		link.IsActive,
		link.ExpiresAt,
		link.UserID,
	).Scan(&link.CreatedAt, &link.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetActiveByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `
		SELECT id, short_code, original_url, custom_alias, title, description,
		       is_active, expires_at, created_at, updated_at, user_id, click_count
		FROM links
		WHERE short_code = $1
			AND is_active = TRUE
			AND (expires_at IS NULL OR expires_at > NOW())
	`

	link := &models.Link{}
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.CustomAlias,
		&link.Title,
		&link.Description,
		&link.IsActive,
		&link.ExpiresAt,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.UserID,
		&link.ClickCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) Exists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}

	return exists, nil
}

func (r *linkRepository) GetIDByShortCode(ctx context.Context, code string) (uuid.UUID, error) {
	query := `SELECT id FROM links WHERE short_code = $1`

	var linkID uuid.UUID
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(&linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrLinkNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get link ID: %w", err)
	}

	return linkID, nil
}

func (r *linkRepository) Delete(ctx context.Context, code string, ownerID *string) error {
	// Владелец удаляет только свои ссылки; nil владелец - только анонимные
	query := `
		DELETE FROM links
		WHERE short_code = $1
			AND (($2::text IS NULL AND user_id IS NULL) OR user_id = $2)
	`

	result, err := r.db.Pool.Exec(ctx, query, code, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) ListByUser(ctx context.Context, userID *string) ([]models.Link, error) {
	query := `
		SELECT id, short_code, original_url, custom_alias, title, description,
		       is_active, expires_at, created_at, updated_at, user_id, click_count
		FROM links
		WHERE ($1::text IS NULL AND user_id IS NULL) OR user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var link models.Link
		if err := rows.Scan(
			&link.ID,
			&link.ShortCode,
			&link.OriginalURL,
			&link.CustomAlias,
			&link.Title,
			&link.Description,
			&link.IsActive,
			&link.ExpiresAt,
			&link.CreatedAt,
			&link.UpdatedAt,
			&link.UserID,
			&link.ClickCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) CountByUser(ctx context.Context, userID *string) (int64, error) {
	query := `SELECT COUNT(*) FROM links WHERE $1::text IS NULL OR user_id = $1`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}

	return count, nil
}

// isUniqueViolation проверяет код ошибки Postgres 23505 (unique_violation)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
