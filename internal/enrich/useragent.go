package enrich

import (
	"net/url"
	"regexp"
)

const Unknown = "Unknown"

// DirectReferer используется, когда referer отсутствует или не парсится
const DirectReferer = "Direct"

// Плоские таблицы правил, проверяются по порядку: первое совпадение побеждает.
// Исключения (Chrome vs Edge, Safari vs Chrome) выражены через exclude.
type uaRule struct {
	name    string
	match   *regexp.Regexp
	exclude *regexp.Regexp
}

var browserRules = []uaRule{
	{name: "Edge", match: regexp.MustCompile(`Edge?/`)},
	{name: "Opera", match: regexp.MustCompile(`Opera|OPR/`)},
	{name: "Chrome", match: regexp.MustCompile(`Chrome`), exclude: regexp.MustCompile(`Edge?/`)},
	{name: "Firefox", match: regexp.MustCompile(`Firefox`)},
	{name: "Safari", match: regexp.MustCompile(`Safari`), exclude: regexp.MustCompile(`Chrome`)},
}

var osRules = []uaRule{
	{name: "Windows", match: regexp.MustCompile(`Windows`)},
	{name: "Android", match: regexp.MustCompile(`Android`)},
	{name: "iOS", match: regexp.MustCompile(`iPhone|iPad`)},
	{name: "macOS", match: regexp.MustCompile(`Mac OS`)},
	{name: "Linux", match: regexp.MustCompile(`Linux`)},
}

var (
	mobilePattern = regexp.MustCompile(`Mobile|Android|iPhone|iPad`)
	tabletPattern = regexp.MustCompile(`iPad`)
)

// UAInfo результат классификации user-agent
type UAInfo struct {
	Browser string
	OS      string
	Device  string // Desktop | Mobile | Tablet | Unknown
}

// ClassifyUserAgent чистая функция: regex-классификация без внешних вызовов.
// Пустой user-agent даёт Unknown по всем полям.
func ClassifyUserAgent(userAgent string) UAInfo {
	if userAgent == "" {
		return UAInfo{Browser: Unknown, OS: Unknown, Device: Unknown}
	}

	info := UAInfo{Browser: "Other", OS: "Other", Device: "Desktop"}

	for _, rule := range browserRules {
		if rule.match.MatchString(userAgent) && (rule.exclude == nil || !rule.exclude.MatchString(userAgent)) {
			info.Browser = rule.name
			break
		}
	}

	for _, rule := range osRules {
		if rule.match.MatchString(userAgent) {
			info.OS = rule.name
			break
		}
	}

	if mobilePattern.MatchString(userAgent) {
		if tabletPattern.MatchString(userAgent) {
			info.Device = "Tablet"
		} else {
			info.Device = "Mobile"
		}
	}

	return info
}

// ExtractRefererHost достаёт hostname из referer; на любой сбой парсинга
// или отсутствие значения возвращает "Direct"
func ExtractRefererHost(referer string) string {
	if referer == "" {
		return DirectReferer
	}

	parsed, err := url.Parse(referer)
	if err != nil || parsed.Hostname() == "" {
		return DirectReferer
	}

	return parsed.Hostname()
}
