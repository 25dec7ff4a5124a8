package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/repository"
	"github.com/akarpov/linkpulse/internal/shortcode"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrLinkNotFound       = errors.New("ссылка не найдена")
	ErrAliasTaken         = errors.New("alias уже занят")
	ErrCodeSpaceExhausted = errors.New("не удалось подобрать свободный короткий код")
)

// Константы сервиса
const (
	defaultCacheTTL  = 24 * time.Hour
	maxTTL           = 30 * 24 * time.Hour
	maxGenerateTries = 5
	maxTextLength    = 200
)

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	// ResolveRedirect возвращает конечный URL для активной непросроченной
	// ссылки. Просроченные, выключенные и несуществующие коды неразличимы
	// для вызывающего: все дают ErrLinkNotFound.
	ResolveRedirect(ctx context.Context, code string) (string, error)
	DeleteLink(ctx context.Context, code string, ownerID *string) error
	ListLinks(ctx context.Context, userID *string) ([]models.Link, error)
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo  repository.LinkRepository
	cacheRepo repository.CacheRepository
	logger    *zap.Logger
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, cacheRepo repository.CacheRepository, logger *zap.Logger) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		logger:    logger,
	}
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	// Валидация URL (схема, длина, чёрный список)
	if err := shortcode.ValidateURL(input.OriginalURL); err != nil {
		return nil, err
	}

	link := &models.Link{
		ID:          uuid.New(),
		OriginalURL: input.OriginalURL,
		IsActive:    true,
		UserID:      input.UserID,
	}

	if input.Title != nil {
		title := shortcode.SanitizeText(*input.Title, maxTextLength)
		link.Title = &title
	}
	if input.Description != nil {
		description := shortcode.SanitizeText(*input.Description, maxTextLength)
		link.Description = &description
	}

	// Расчёт TTL
	if input.ExpiresIn != nil && *input.ExpiresIn > 0 {
		ttl := time.Duration(*input.ExpiresIn) * time.Minute
		if ttl > maxTTL {
			ttl = maxTTL
		}
		t := time.Now().Add(ttl)
		link.ExpiresAt = &t
	}

	if input.CustomAlias != nil && *input.CustomAlias != "" {
		if err := s.createWithAlias(ctx, link, *input.CustomAlias); err != nil {
			return nil, err
		}
	} else {
		if err := s.createWithGeneratedCode(ctx, link); err != nil {
			return nil, err
		}
	}

	// Кэширование: ошибка кэша не прерывает создание
	if err := s.cacheRepo.Set(ctx, link.ShortCode, link, s.cacheTTL(link)); err != nil {
		s.logger.Warn("Не удалось закэшировать ссылку", zap.String("code", link.ShortCode), zap.Error(err))
	}

	return link, nil
}

// createWithAlias валидирует кастомный alias и создаёт ссылку под ним
func (s *linkService) createWithAlias(ctx context.Context, link *models.Link, alias string) error {
	sanitized, err := shortcode.ValidateAlias(alias)
	if err != nil {
		return err
	}

	exists, err := s.linkRepo.Exists(ctx, sanitized)
	if err != nil {
		return fmt.Errorf("failed to check alias: %w", err)
	}
	if exists {
		return ErrAliasTaken
	}

	link.ShortCode = sanitized
	link.CustomAlias = &sanitized

	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			// Гонка между проверкой и вставкой
			return ErrAliasTaken
		}
		return err
	}

	return nil
}

// createWithGeneratedCode генерирует код с проверкой уникальности и retry.
// Генератор не авторитетен: уникальность подтверждает база. После
// maxGenerateTries попыток отдаём ErrCodeSpaceExhausted - на практике не
// случается, но бесконечный цикл недопустим.
func (s *linkService) createWithGeneratedCode(ctx context.Context, link *models.Link) error {
	for attempt := 0; attempt < maxGenerateTries; attempt++ {
		code, err := shortcode.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate code: %w", err)
		}

		exists, err := s.linkRepo.Exists(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to check code: %w", err)
		}
		if exists {
			s.logger.Debug("Коллизия короткого кода, регенерируем",
				zap.String("code", code),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		link.ShortCode = code
		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrCodeExists) {
			// Кто-то успел занять код между проверкой и вставкой
			continue
		}
		return err
	}

	s.logger.Error("Исчерпаны попытки генерации короткого кода",
		zap.Int("max_tries", maxGenerateTries),
	)
	return ErrCodeSpaceExhausted
}

// ResolveRedirect получает конечный URL по коду (сначала из кэша, затем из БД)
func (s *linkService) ResolveRedirect(ctx context.Context, code string) (string, error) {
	// Проверка кэша; кэшируются только активные ссылки, но просрочка и
	// деактивация могли случиться позже записи
	if link, err := s.cacheRepo.Get(ctx, code); err == nil {
		if s.isLive(link) {
			return shortcode.FormatURL(link.OriginalURL), nil
		}
		s.cacheRepo.Delete(ctx, code)
	}

	// Запрос из БД: фильтр по is_active и expires_at на уровне SQL
	link, err := s.linkRepo.GetActiveByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return "", ErrLinkNotFound
		}
		// Ошибка хранилища - отдельный случай от "не найдено"
		return "", fmt.Errorf("failed to resolve link: %w", err)
	}

	if err := s.cacheRepo.Set(ctx, code, link, s.cacheTTL(link)); err != nil {
		s.logger.Warn("Не удалось закэшировать ссылку", zap.String("code", code), zap.Error(err))
	}

	return shortcode.FormatURL(link.OriginalURL), nil
}

// DeleteLink удаляет ссылку вместе с её кликами (каскад на уровне БД)
func (s *linkService) DeleteLink(ctx context.Context, code string, ownerID *string) error {
	// Кэш чистим первым, чтобы удалённая ссылка не резолвилась из него
	s.cacheRepo.Delete(ctx, code)

	err := s.linkRepo.Delete(ctx, code, ownerID)
	if errors.Is(err, repository.ErrLinkNotFound) {
		return ErrLinkNotFound
	}
	return err
}

// ListLinks возвращает ссылки аккаунта
func (s *linkService) ListLinks(ctx context.Context, userID *string) ([]models.Link, error) {
	return s.linkRepo.ListByUser(ctx, userID)
}

func (s *linkService) isLive(link *models.Link) bool {
	if !link.IsActive {
		return false
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

func (s *linkService) cacheTTL(link *models.Link) time.Duration {
	ttl := defaultCacheTTL
	if link.ExpiresAt != nil {
		if until := time.Until(*link.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	return ttl
}
