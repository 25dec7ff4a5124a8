package models

type DailyStat struct {
	Date   string `json:"date"` // YYYY-MM-DD (UTC)
	Clicks int64  `json:"clicks"`
}

type RefererStat struct {
	Referer string `json:"referer"`
	Count   int64  `json:"count"`
}

// LinkStats агрегированная статистика одной ссылки
type LinkStats struct {
	ShortCode    string        `json:"short_code"`
	TotalClicks  int64         `json:"total_clicks"`
	RecentClicks []Click       `json:"recent_clicks"`
	DailyStats   []DailyStat   `json:"daily_stats"` // последние 7 дней, нулевые дни присутствуют
	TopReferers  []RefererStat `json:"top_referers"`
}

type TopLink struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	Clicks      int64  `json:"clicks"`
}

// AccountStats сводка по аккаунту (или глобальная, если user id пуст)
type AccountStats struct {
	TotalLinks  int64     `json:"total_links"`
	TotalClicks int64     `json:"total_clicks"`
	TopLinks    []TopLink `json:"top_links"`
}

// PeriodPoint точка временного ряда; ряд всегда плотный и фиксированной длины
type PeriodPoint struct {
	Label  string `json:"label"` // YYYY-MM-DD для дней, YYYY-MM для месяцев
	Clicks int64  `json:"clicks"`
}

// BreakdownEntry категориальная корзина; отсутствующие значения идут в "Unknown"
type BreakdownEntry struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}
