package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// CleanText 合并连续空白并去掉首尾空白
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	keySpaces  = regexp.MustCompile(`\s+`)
	keyInvalid = regexp.MustCompile(`[^a-z0-9_]`)
)

// NormalizeKey 把标签文本转换为字段名: "Payment method" → "payment_method"
func NormalizeKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.TrimSuffix(key, ":")
	key = keySpaces.ReplaceAllString(key, "_")
	return keyInvalid.ReplaceAllString(key, "")
}

// hostExcluded 判断URL是否指向被排除的站点
func hostExcluded(rawURL string, hosts []string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// absoluteHTTP 相对链接按base解析,只接受http(s)链接
func absoluteHTTP(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	return parsed.String(), true
}
