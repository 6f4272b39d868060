package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
)

// SocialPlatform 社交平台及其域名特征
type SocialPlatform struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// EnrichmentOptions 补充字段配置
type EnrichmentOptions struct {
	SocialPlatforms []SocialPlatform `mapstructure:"social_platforms" yaml:"social_platforms"`
	EmailBlocklist  []string         `mapstructure:"email_blocklist" yaml:"email_blocklist"`
}

// DefaultSocialPlatforms 默认识别的社交平台
func DefaultSocialPlatforms() []SocialPlatform {
	return []SocialPlatform{
		{Name: "facebook", Patterns: []string{"facebook.com", "fb.com"}},
		{Name: "twitter", Patterns: []string{"twitter.com", "x.com"}},
		{Name: "instagram", Patterns: []string{"instagram.com"}},
		{Name: "linkedin", Patterns: []string{"linkedin.com"}},
		{Name: "youtube", Patterns: []string{"youtube.com"}},
		{Name: "yelp", Patterns: []string{"yelp.com"}},
		{Name: "tripadvisor", Patterns: []string{"tripadvisor.com"}},
		{Name: "tiktok", Patterns: []string{"tiktok.com"}},
	}
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Enricher 提取社交链接和邮箱,优先级最低
type Enricher struct {
	platforms []SocialPlatform
	blocklist []string
}

// NewEnricher 创建补充字段提取器
func NewEnricher(opts EnrichmentOptions) *Enricher {
	platforms := opts.SocialPlatforms
	if len(platforms) == 0 {
		platforms = DefaultSocialPlatforms()
	}
	blocklist := opts.EmailBlocklist
	if len(blocklist) == 0 {
		blocklist = []string{"example.com", "domain.com", "email.com", "yoursite", "yourdomain", "emailaddress", "sentry"}
	}
	return &Enricher{platforms: platforms, blocklist: blocklist}
}

// Extract 提取社交链接和邮箱
func (e *Enricher) Extract(doc *goquery.Selection, pageURL *url.URL) *models.Fragment {
	fragment := models.NewFragment(models.StrategyEnrichment)
	fragment.Set("social_media", e.socialLinks(doc, pageURL))
	fragment.Set(models.FieldEmail, e.email(doc))
	return fragment
}

func (e *Enricher) socialLinks(doc *goquery.Selection, pageURL *url.URL) []map[string]any {
	var links []map[string]any
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, ok := absoluteHTTP(href, pageURL)
		if !ok || seen[abs] {
			return
		}
		parsed, err := url.Parse(abs)
		if err != nil {
			return
		}
		host := strings.ToLower(parsed.Hostname())
		for _, p := range e.platforms {
			for _, pattern := range p.Patterns {
				if host == pattern || strings.HasSuffix(host, "."+pattern) {
					seen[abs] = true
					links = append(links, map[string]any{"platform": p.Name, "url": abs})
					return
				}
			}
		}
	})
	return links
}

// email 依次尝试 mailto 链接、正文中的邮箱、data-email 属性
func (e *Enricher) email(doc *goquery.Selection) string {
	if href, ok := doc.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			return addr
		}
	}

	for _, candidate := range emailPattern.FindAllString(doc.Find("body").Text(), -1) {
		if e.allowed(candidate) {
			return candidate
		}
	}

	var found string
	doc.Find("[data-email], [data-contact-email], [data-business-email]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"data-email", "data-contact-email", "data-business-email"} {
			if v, ok := s.Attr(attr); ok && emailPattern.MatchString(v) && e.allowed(v) {
				found = strings.TrimSpace(v)
				return false
			}
		}
		return true
	})
	return found
}

func (e *Enricher) allowed(email string) bool {
	lower := strings.ToLower(email)
	for _, blocked := range e.blocklist {
		if strings.Contains(lower, blocked) {
			return false
		}
	}
	return true
}
