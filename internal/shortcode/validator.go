package shortcode

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL    = errors.New("невалидный URL")
	ErrInvalidAlias  = errors.New("невалидный alias")
	ErrReservedAlias = errors.New("alias зарезервирован")
	ErrSuspiciousURL = errors.New("домен или URL в чёрном списке")
)

const maxURLLength = 2048

// Чёрный список: другие сокращатели (защита от циклов), известные плохие
// домены и локальные адреса
var suspiciousDomains = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co",
	"malware.com", "phishing.com", "spam.com",
	"localhost", "127.0.0.1", "0.0.0.0",
}

var suspiciousKeywords = []string{
	"malware", "phishing", "scam", "hack", "crack", "pirate",
	"download-virus", "free-money", "click-here-now",
}

var reservedAliases = map[string]bool{
	"api":       true,
	"admin":     true,
	"dashboard": true,
	"auth":      true,
	"login":     true,
	"register":  true,
	"www":       true,
}

var aliasPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateURL принимает только http/https до 2048 символов и отсекает
// подозрительные домены и ключевые слова. Это фильтр глубокой обороны,
// а не гарантия безопасности ссылки.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return ErrInvalidURL
	}
	if len(rawURL) > maxURLLength {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}

	hostname := strings.ToLower(parsed.Hostname())
	for _, domain := range suspiciousDomains {
		if strings.Contains(hostname, domain) {
			return ErrSuspiciousURL
		}
	}

	lowered := strings.ToLower(rawURL)
	for _, keyword := range suspiciousKeywords {
		if strings.Contains(lowered, keyword) {
			return ErrSuspiciousURL
		}
	}

	return nil
}

// ValidateAlias нормализует кастомный alias (trim + lowercase) и проверяет
// длину 3..50, алфавит [a-z0-9-] и список зарезервированных имён.
// Возвращает нормализованный alias.
func ValidateAlias(candidate string) (string, error) {
	sanitized := strings.ToLower(strings.TrimSpace(candidate))

	if len(sanitized) < 3 || len(sanitized) > 50 {
		return "", ErrInvalidAlias
	}
	if !aliasPattern.MatchString(sanitized) {
		return "", ErrInvalidAlias
	}
	if reservedAliases[sanitized] {
		return "", ErrReservedAlias
	}

	return sanitized, nil
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	htmlSpecialPattern = regexp.MustCompile(`[<>&"']`)
	spacesPattern      = regexp.MustCompile(`\s+`)
)

// SanitizeText чистит пользовательский текст (title, description)
func SanitizeText(text string, maxLength int) string {
	if text == "" {
		return ""
	}

	result := strings.TrimSpace(text)
	if len(result) > maxLength {
		result = result[:maxLength]
	}
	result = htmlTagPattern.ReplaceAllString(result, "")
	result = htmlSpecialPattern.ReplaceAllString(result, "")
	result = spacesPattern.ReplaceAllString(result, " ")

	return result
}

// FormatURL добавляет https:// если схема не указана
func FormatURL(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}
