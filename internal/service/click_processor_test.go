package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/service"
	"github.com/akarpov/linkpulse/internal/service/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver детерминированный CountryResolver для тестов
type stubResolver struct {
	country string
}

func (r *stubResolver) Country(ctx context.Context, ip string) string {
	return r.country
}

// waitForClicks ждёт, пока процессор запишет ожидаемое число кликов
func waitForClicks(t *testing.T, clickRepo *mocks.MockClickRepository, linkID uuid.UUID, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		count, _ := clickRepo.CountByLink(context.Background(), linkID)
		return count == int64(want)
	}, 3*time.Second, 10*time.Millisecond)
}

// TestClickProcessor_RecordsEveryClick проверяет, что N конкурентных событий
// дают ровно N записей
func TestClickProcessor_RecordsEveryClick(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	processor := service.NewClickProcessor(clickRepo, linkRepo, &stubResolver{country: "Germany"}, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Enqueue(&models.ClickEvent{
				ShortCode: "abc123",
				IP:        "203.0.113.10",
				UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Version/17.0 Mobile/15E148 Safari/604.1",
				Consent:   true,
			})
		}()
	}
	wg.Wait()

	waitForClicks(t, clickRepo, link.ID, n)
	processor.Stop()

	count, err := clickRepo.CountByLink(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

// TestClickProcessor_EnrichesWithConsent проверяет заполнение производных полей
func TestClickProcessor_EnrichesWithConsent(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	processor := service.NewClickProcessor(clickRepo, linkRepo, &stubResolver{country: "Germany"}, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()
	defer processor.Stop()

	processor.Enqueue(&models.ClickEvent{
		ShortCode: "abc123",
		IP:        "203.0.113.10",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Version/17.0 Mobile/15E148 Safari/604.1",
		Referer:   "https://news.ycombinator.com/item?id=1",
		Consent:   true,
	})

	waitForClicks(t, clickRepo, link.ID, 1)

	clicks := clickRepo.Clicks(link.ID)
	require.Len(t, clicks, 1)
	click := clicks[0]

	require.NotNil(t, click.Device)
	assert.Equal(t, "Mobile", *click.Device)
	require.NotNil(t, click.Browser)
	assert.Equal(t, "Safari", *click.Browser)
	require.NotNil(t, click.OS)
	assert.Equal(t, "iOS", *click.OS)
	require.NotNil(t, click.Country)
	assert.Equal(t, "Germany", *click.Country)
	require.NotNil(t, click.Referer)
	assert.Equal(t, "news.ycombinator.com", *click.Referer)
	require.NotNil(t, click.UserAgent)
}

// TestClickProcessor_ConsentDenied проверяет, что без согласия пишется только
// факт клика: измерения и тексты остаются пустыми
func TestClickProcessor_ConsentDenied(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	processor := service.NewClickProcessor(clickRepo, linkRepo, &stubResolver{country: "Germany"}, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()
	defer processor.Stop()

	processor.Enqueue(&models.ClickEvent{
		ShortCode: "abc123",
		IP:        "203.0.113.10",
		UserAgent: "Mozilla/5.0 (iPhone) Safari/604.1",
		Referer:   "https://example.org/page",
		Consent:   false,
	})

	waitForClicks(t, clickRepo, link.ID, 1)

	clicks := clickRepo.Clicks(link.ID)
	require.Len(t, clicks, 1)
	click := clicks[0]

	assert.Nil(t, click.Device)
	assert.Nil(t, click.Browser)
	assert.Nil(t, click.OS)
	assert.Nil(t, click.Country)
	assert.Nil(t, click.Referer)
	assert.Nil(t, click.UserAgent)
	// Счётчик клика при этом записан, а IP захэширован
	assert.NotNil(t, click.IPHash)
}

// TestClickProcessor_NeverStoresRawIP проверяет, что сырой IP не попадает в запись
func TestClickProcessor_NeverStoresRawIP(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	processor := service.NewClickProcessor(clickRepo, linkRepo, &stubResolver{country: "Germany"}, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()
	defer processor.Stop()

	const rawIP = "203.0.113.10"
	processor.Enqueue(&models.ClickEvent{
		ShortCode: "abc123",
		IP:        rawIP,
		Consent:   true,
	})

	waitForClicks(t, clickRepo, link.ID, 1)

	clicks := clickRepo.Clicks(link.ID)
	require.Len(t, clicks, 1)
	require.NotNil(t, clicks[0].IPHash)
	assert.NotEqual(t, rawIP, *clicks[0].IPHash)
	assert.NotContains(t, *clicks[0].IPHash, rawIP)
	assert.Len(t, *clicks[0].IPHash, 16)
}

// TestClickProcessor_HashDependsOnSalt проверяет, что разные соли дают разные хэши
func TestClickProcessor_HashDependsOnSalt(t *testing.T) {
	hashes := make([]string, 0, 2)

	for _, salt := range []string{"salt-one", "salt-two"} {
		linkRepo := mocks.NewMockLinkRepository()
		clickRepo := mocks.NewMockClickRepository()

		link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
		require.NoError(t, linkRepo.Create(context.Background(), link))

		processor := service.NewClickProcessor(clickRepo, linkRepo, nil, service.ClickProcessorConfig{
			IPSalt: salt,
		}, nil)
		processor.Start()

		processor.Enqueue(&models.ClickEvent{ShortCode: "abc123", IP: "203.0.113.10", Consent: true})
		waitForClicks(t, clickRepo, link.ID, 1)
		processor.Stop()

		clicks := clickRepo.Clicks(link.ID)
		require.Len(t, clicks, 1)
		require.NotNil(t, clicks[0].IPHash)
		hashes = append(hashes, *clicks[0].IPHash)
	}

	assert.NotEqual(t, hashes[0], hashes[1])
}

// TestClickProcessor_RetriesTransientErrors проверяет retry при временных сбоях БД
func TestClickProcessor_RetriesTransientErrors(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	link := &models.Link{ID: uuid.New(), ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	// Первые две попытки падают, третья проходит
	clickRepo.RecordErrs = []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
	}

	processor := service.NewClickProcessor(clickRepo, linkRepo, nil, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()
	defer processor.Stop()

	processor.Enqueue(&models.ClickEvent{ShortCode: "abc123", IP: "203.0.113.10", Consent: true})

	waitForClicks(t, clickRepo, link.ID, 1)
}

// TestClickProcessor_UnknownCode проверяет, что событие по несуществующему
// коду молча отбрасывается
func TestClickProcessor_UnknownCode(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	processor := service.NewClickProcessor(clickRepo, linkRepo, nil, service.ClickProcessorConfig{
		IPSalt: "test-salt",
	}, logger)
	processor.Start()

	processor.Enqueue(&models.ClickEvent{ShortCode: "ghost1", IP: "203.0.113.10", Consent: true})

	// Даём процессору время обработать событие
	time.Sleep(100 * time.Millisecond)
	processor.Stop()

	count, err := clickRepo.CountByUser(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// TestClickProcessor_EnqueueNeverBlocks проверяет неблокирующую отправку
// при переполненном буфере и незапущенных воркерах
func TestClickProcessor_EnqueueNeverBlocks(t *testing.T) {
	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()
	logger, _ := zap.NewDevelopment()

	// Воркеры не запущены: буфер на 1 событие заполняется первым же Enqueue
	processor := service.NewClickProcessor(clickRepo, linkRepo, nil, service.ClickProcessorConfig{
		IPSalt:     "test-salt",
		BufferSize: 1,
	}, logger)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			processor.Enqueue(&models.ClickEvent{ShortCode: "abc123", IP: "203.0.113.10"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue заблокировался на переполненном буфере")
	}
}
