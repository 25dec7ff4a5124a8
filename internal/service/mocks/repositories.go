package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/repository"
	"github.com/google/uuid"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu    sync.RWMutex
	links map[string]*models.Link

	// ForceExists заставляет Exists всегда отвечать true: эмуляция
	// полностью занятого пространства кодов
	ForceExists bool
	// CreateErr если задан, Create возвращает эту ошибку
	CreateErr error
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links: make(map[string]*models.Link),
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.CreatedAt = time.Now()
	link.UpdatedAt = link.CreatedAt
	m.links[link.ShortCode] = link
	return nil
}

func (m *MockLinkRepository) GetActiveByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists || !link.IsActive {
		return nil, repository.ErrLinkNotFound
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(time.Now()) {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (m *MockLinkRepository) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ForceExists {
		return true, nil
	}
	_, exists := m.links[code]
	return exists, nil
}

func (m *MockLinkRepository) GetIDByShortCode(ctx context.Context, code string) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return uuid.Nil, repository.ErrLinkNotFound
	}
	return link.ID, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, code string, ownerID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[code]
	if !exists || !sameOwner(link.UserID, ownerID) {
		return repository.ErrLinkNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *MockLinkRepository) ListByUser(ctx context.Context, userID *string) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []models.Link
	for _, link := range m.links {
		if sameOwner(link.UserID, userID) {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (m *MockLinkRepository) CountByUser(ctx context.Context, userID *string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if userID == nil {
		return int64(len(m.links)), nil
	}
	var count int64
	for _, link := range m.links {
		if link.UserID != nil && *link.UserID == *userID {
			count++
		}
	}
	return count, nil
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.ForceExists = false
	m.CreateErr = nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.Link
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.Link),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[key]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = link
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*models.Link)
}

// mockLinkInfo метаданные ссылки для user-scoped запросов
type mockLinkInfo struct {
	shortCode   string
	originalURL string
	userID      *string
}

// MockClickRepository implements repository.ClickRepository for testing
type MockClickRepository struct {
	mu     sync.RWMutex
	clicks map[uuid.UUID][]*models.Click
	info   map[uuid.UUID]mockLinkInfo

	// RecordErrs очередь ошибок для RecordClick: каждая запись снимает
	// одну ошибку с головы, эмуляция временных сбоев БД
	RecordErrs []error
}

func NewMockClickRepository() *MockClickRepository {
	return &MockClickRepository{
		clicks: make(map[uuid.UUID][]*models.Click),
		info:   make(map[uuid.UUID]mockLinkInfo),
	}
}

// RegisterLink сообщает мок-репозиторию метаданные ссылки, которые в
// настоящей БД приходят через JOIN с таблицей links
func (m *MockClickRepository) RegisterLink(id uuid.UUID, shortCode, originalURL string, userID *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info[id] = mockLinkInfo{shortCode: shortCode, originalURL: originalURL, userID: userID}
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.RecordErrs) > 0 {
		err := m.RecordErrs[0]
		m.RecordErrs = m.RecordErrs[1:]
		if err != nil {
			return err
		}
	}

	m.clicks[click.LinkID] = append(m.clicks[click.LinkID], click)
	return nil
}

func (m *MockClickRepository) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.clicks[linkID])), nil
}

func (m *MockClickRepository) RecentByLink(ctx context.Context, linkID uuid.UUID, limit int) ([]models.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.clicks[linkID]
	recent := make([]models.Click, 0, limit)
	for i := len(all) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, *all[i])
	}
	return recent, nil
}

func (m *MockClickRepository) CountByDaySince(ctx context.Context, linkID uuid.UUID, since time.Time) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, click := range m.clicks[linkID] {
		if click.ClickedAt.Before(since) {
			continue
		}
		counts[click.ClickedAt.UTC().Format("2006-01-02")]++
	}
	return counts, nil
}

func (m *MockClickRepository) TopReferers(ctx context.Context, linkID uuid.UUID, limit int) ([]models.RefererStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, click := range m.clicks[linkID] {
		ref := "Direct"
		if click.Referer != nil {
			ref = *click.Referer
		}
		counts[ref]++
	}

	stats := make([]models.RefererStat, 0, len(counts))
	for ref, count := range counts {
		stats = append(stats, models.RefererStat{Referer: ref, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (m *MockClickRepository) GroupByDimension(ctx context.Context, linkID uuid.UUID, dimension string) ([]models.BreakdownEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pick := func(c *models.Click) *string {
		switch dimension {
		case "country":
			return c.Country
		case "device":
			return c.Device
		case "browser":
			return c.Browser
		case "os":
			return c.OS
		}
		return nil
	}

	switch dimension {
	case "country", "device", "browser", "os":
	default:
		return nil, repository.ErrUnknownDimension
	}

	counts := make(map[string]int64)
	for _, click := range m.clicks[linkID] {
		value := "Unknown"
		if v := pick(click); v != nil {
			value = *v
		}
		counts[value]++
	}

	entries := make([]models.BreakdownEntry, 0, len(counts))
	for value, count := range counts {
		entries = append(entries, models.BreakdownEntry{Value: value, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	return entries, nil
}

func (m *MockClickRepository) CountByUser(ctx context.Context, userID *string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for linkID, clicks := range m.clicks {
		if m.ownedBy(linkID, userID) {
			count += int64(len(clicks))
		}
	}
	return count, nil
}

func (m *MockClickRepository) TopLinksByUser(ctx context.Context, userID *string, limit int) ([]models.TopLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]models.TopLink, 0, len(m.info))
	for linkID, info := range m.info {
		if !m.ownedBy(linkID, userID) {
			continue
		}
		links = append(links, models.TopLink{
			ShortCode:   info.shortCode,
			OriginalURL: info.originalURL,
			Clicks:      int64(len(m.clicks[linkID])),
		})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Clicks > links[j].Clicks })
	if len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *MockClickRepository) CountByDayForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for linkID, clicks := range m.clicks {
		if !m.ownedBy(linkID, userID) {
			continue
		}
		for _, click := range clicks {
			if click.ClickedAt.Before(since) {
				continue
			}
			counts[click.ClickedAt.UTC().Format("2006-01-02")]++
		}
	}
	return counts, nil
}

func (m *MockClickRepository) CountByMonthForUser(ctx context.Context, userID *string, since time.Time) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for linkID, clicks := range m.clicks {
		if !m.ownedBy(linkID, userID) {
			continue
		}
		for _, click := range clicks {
			if click.ClickedAt.Before(since) {
				continue
			}
			counts[click.ClickedAt.UTC().Format("2006-01")]++
		}
	}
	return counts, nil
}

// ownedBy nil userID означает глобальную выборку, как в SQL реализации
func (m *MockClickRepository) ownedBy(linkID uuid.UUID, userID *string) bool {
	if userID == nil {
		return true
	}
	info, ok := m.info[linkID]
	return ok && info.userID != nil && *info.userID == *userID
}

// Clicks возвращает копию записанных кликов по ссылке
func (m *MockClickRepository) Clicks(linkID uuid.UUID) []*models.Click {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.Click(nil), m.clicks[linkID]...)
}

func (m *MockClickRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = make(map[uuid.UUID][]*models.Click)
	m.info = make(map[uuid.UUID]mockLinkInfo)
	m.RecordErrs = nil
}
