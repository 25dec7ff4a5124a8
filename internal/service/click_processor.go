package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/akarpov/linkpulse/internal/enrich"
	"github.com/akarpov/linkpulse/internal/models"
	"github.com/akarpov/linkpulse/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3
	defaultChannelBuffer = 1000
	maxRetries           = 3 // Максимальное количество попыток записи
	processTimeout       = 5 * time.Second
)

// ClickProcessorConfig параметры процессора кликов
type ClickProcessorConfig struct {
	IPSalt      string
	WorkerCount int
	BufferSize  int
}

// ClickProcessor принимает сырые события кликов и асинхронно пишет их в
// хранилище. Задача отвязана от запроса: обрыв редиректа клиентом не
// отменяет запись клика.
type ClickProcessor interface {
	Start()
	Stop()
	// Enqueue не блокирует: при переполненном буфере событие теряется
	// с предупреждением в логе, но редирект не страдает
	Enqueue(event *models.ClickEvent)
}

// clickProcessor реализация процессора кликов с использованием Worker Pool
type clickProcessor struct {
	clickRepo    repository.ClickRepository
	linkRepo     repository.LinkRepository
	resolver     enrich.CountryResolver
	config       ClickProcessorConfig
	logger       *zap.Logger
	clickChannel chan *models.ClickEvent
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewClickProcessor создаёт новый экземпляр процессора кликов
func NewClickProcessor(
	clickRepo repository.ClickRepository,
	linkRepo repository.LinkRepository,
	resolver enrich.CountryResolver,
	config ClickProcessorConfig,
	logger *zap.Logger,
) ClickProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WorkerCount == 0 {
		config.WorkerCount = defaultWorkerCount
	}
	if config.BufferSize == 0 {
		config.BufferSize = defaultChannelBuffer
	}
	return &clickProcessor{
		clickRepo:    clickRepo,
		linkRepo:     linkRepo,
		resolver:     resolver,
		config:       config,
		logger:       logger,
		clickChannel: make(chan *models.ClickEvent, config.BufferSize),
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", p.config.WorkerCount))

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop корректно останавливает worker pool
func (p *clickProcessor) Stop() {
	p.logger.Info("Остановка процессора кликов...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Процессор кликов остановлен")
}

// worker обрабатывает события кликов из канала
func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
			return

		case event, ok := <-p.clickChannel:
			if !ok {
				return
			}
			p.processClick(event)
		}
	}
}

// Enqueue отправляет событие клика в worker pool (неблокирующая операция)
func (p *clickProcessor) Enqueue(event *models.ClickEvent) {
	select {
	case p.clickChannel <- event:
	default:
		// Канал заполнен: теряем статистику, но не блокируем запрос
		p.logger.Warn("Буфер канала кликов заполнен, событие потеряно",
			zap.String("short_code", event.ShortCode),
		)
	}
}

// processClick обогащает и записывает одно событие. Любая ошибка здесь
// локальна: логируется и гасится, наружу ничего не уходит.
func (p *clickProcessor) processClick(event *models.ClickEvent) {
	// Таймаут от контекста пула, не от запроса: клиентский обрыв
	// редиректа не отменяет запись
	ctx, cancel := context.WithTimeout(p.ctx, processTimeout)
	defer cancel()

	linkID, err := p.linkRepo.GetIDByShortCode(ctx, event.ShortCode)
	if err != nil {
		p.logger.Warn("Не удалось получить ID ссылки для клика",
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
		return
	}

	click := &models.Click{
		LinkID:    linkID,
		ClickedAt: time.Now(),
	}

	// Сырой IP не храним никогда - только солёный хэш, независимо от consent
	if event.IP != "" {
		hash := p.hashIP(event.IP)
		click.IPHash = &hash
	}

	// Без согласия пишется только факт клика: измерения и тексты не заполняем
	if event.Consent {
		p.enrichClick(ctx, click, event)
	}

	// Retry логика для записи в БД
	for i := 0; i < maxRetries; i++ {
		if err = p.clickRepo.RecordClick(ctx, click); err == nil {
			return
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи клика",
				zap.String("short_code", event.ShortCode),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("Не удалось записать клик после всех попыток",
		zap.String("short_code", event.ShortCode),
		zap.Error(err),
	)
}

// enrichClick заполняет производные поля. Сбой любого обогатителя даёт
// Unknown, а не отказ от записи.
func (p *clickProcessor) enrichClick(ctx context.Context, click *models.Click, event *models.ClickEvent) {
	ua := enrich.ClassifyUserAgent(event.UserAgent)
	click.Device = &ua.Device
	click.Browser = &ua.Browser
	click.OS = &ua.OS

	referer := enrich.ExtractRefererHost(event.Referer)
	click.Referer = &referer

	if event.UserAgent != "" {
		userAgent := event.UserAgent
		if len(userAgent) > 255 {
			userAgent = userAgent[:255]
		}
		click.UserAgent = &userAgent
	}

	country := enrich.Unknown
	if p.resolver != nil && event.IP != "" {
		country = p.resolver.Country(ctx, event.IP)
	}
	click.Country = &country
}

// hashIP возвращает первые 16 hex-символов SHA-256 от IP с солью
func (p *clickProcessor) hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + p.config.IPSalt))
	return hex.EncodeToString(sum[:])[:16]
}
