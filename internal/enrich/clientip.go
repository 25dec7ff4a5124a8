package enrich

import (
	"net"
	"strings"
)

// Заголовки в порядке приоритета; первый публичный адрес побеждает
var ipHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Cluster-Client-IP",
}

// HeaderGetter абстрагирует доступ к заголовкам (http.Header, gin и т.д.)
type HeaderGetter interface {
	Get(key string) string
}

// ExtractClientIP выбирает идентифицирующий адрес клиента по приоритетному
// списку заголовков, пропуская приватные/loopback адреса, пока есть кандидат
// получше. Если публичного адреса нет - возвращает remoteAddr (без порта),
// в крайнем случае "unknown".
func ExtractClientIP(headers HeaderGetter, remoteAddr string) string {
	for _, header := range ipHeaders {
		value := headers.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For может содержать цепочку адресов
		for _, candidate := range strings.Split(value, ",") {
			ip := strings.TrimSpace(candidate)
			if ip != "" && !IsPrivateIP(ip) {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}

	return "unknown"
}

// IsPrivateIP возвращает true для loopback, link-local и приватных диапазонов
func IsPrivateIP(ip string) bool {
	if ip == "" || ip == "localhost" || ip == "unknown" {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}

	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() || parsed.IsUnspecified()
}
