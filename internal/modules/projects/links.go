package projects

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"]+`)

// projectIDPattern — 5-значный идентификатор проекта.
var projectIDPattern = regexp.MustCompile(`^#?([0-9]{5})$`)

// parseLink нормализует ссылку: схема и хост в нижнем регистре, без "www." и хвостовой пунктуации.
func parseLink(raw string) (string, *url.URL, bool) {
	raw = strings.TrimRight(raw, ".,!?;:)]}'\"")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), u, true
}

// hostMatches: точное совпадение или поддомен.
func hostMatches(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// qualifyingLinks возвращает уникальные ссылки на отслеживаемые хосты в порядке появления.
func qualifyingLinks(text string, hosts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range urlPattern.FindAllString(text, -1) {
		link, u, ok := parseLink(raw)
		if !ok || !hostMatches(u.Hostname(), hosts) || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}

// displayName — имя проекта по умолчанию: первый сегмент пути или хост.
func displayName(u *url.URL) string {
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			return seg
		}
	}
	return u.Hostname()
}
