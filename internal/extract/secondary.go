package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
	"golang.org/x/net/html"
)

// KeyAlias 标签名包含Match时映射到Field
type KeyAlias struct {
	Match string `mapstructure:"match" yaml:"match"`
	Field string `mapstructure:"field" yaml:"field"`
}

// SecondaryOptions "更多信息"区域提取配置
type SecondaryOptions struct {
	Containers      []string          `mapstructure:"containers" yaml:"containers"`               // 容器选择器,全部扫描
	KeyAliases      []KeyAlias        `mapstructure:"key_aliases" yaml:"key_aliases"`             // 按顺序匹配
	LinkListKeys    []string          `mapstructure:"link_list_keys" yaml:"link_list_keys"`       // 值取链接文本并用 ", " 连接的字段
	OtherInfoKey    string            `mapstructure:"other_info_key" yaml:"other_info_key"`       // 例如 other_information
	OtherInfoFields map[string]string `mapstructure:"other_info_fields" yaml:"other_info_fields"` // 子标签 → 字段
}

// SecondaryExtractor 扫描定义列表形式的键值对
type SecondaryExtractor struct {
	containers   []string
	aliases      []KeyAlias
	linkLists    map[string]bool
	otherInfoKey string
	otherLabels  *regexp.Regexp
	otherFields  map[string]string
	excludeHosts []string
}

// NewSecondaryExtractor 创建"更多信息"提取器
func NewSecondaryExtractor(opts SecondaryOptions, excludeHosts []string) (*SecondaryExtractor, error) {
	x := &SecondaryExtractor{
		containers:   opts.Containers,
		aliases:      opts.KeyAliases,
		linkLists:    make(map[string]bool),
		otherInfoKey: opts.OtherInfoKey,
		otherFields:  make(map[string]string),
		excludeHosts: excludeHosts,
	}
	for _, sel := range opts.Containers {
		if _, err := NewRule(sel, TextOf); err != nil {
			return nil, err
		}
	}
	for _, k := range opts.LinkListKeys {
		x.linkLists[k] = true
	}

	if len(opts.OtherInfoFields) > 0 {
		labels := make([]string, 0, len(opts.OtherInfoFields))
		for label, field := range opts.OtherInfoFields {
			x.otherFields[strings.ToLower(label)] = field
			labels = append(labels, regexp.QuoteMeta(label))
		}
		// 长标签优先,避免前缀互相吞掉
		sort.Slice(labels, func(i, j int) bool { return len(labels[i]) > len(labels[j]) })
		x.otherLabels = regexp.MustCompile(`(?i)(` + strings.Join(labels, "|") + `)\s*:\s*`)
	}
	return x, nil
}

// Extract 扫描所有容器中的 dt/dd 键值对
func (x *SecondaryExtractor) Extract(doc *goquery.Selection, pageURL *url.URL) *models.Fragment {
	fragment := models.NewFragment(models.StrategySecondary)
	visited := make(map[*html.Node]bool)

	for _, sel := range x.containers {
		doc.Find(sel).Each(func(_ int, container *goquery.Selection) {
			node := container.Get(0)
			if visited[node] {
				return
			}
			visited[node] = true
			x.scanContainer(container, pageURL, fragment)
		})
	}
	return fragment
}

func (x *SecondaryExtractor) scanContainer(container *goquery.Selection, pageURL *url.URL, fragment *models.Fragment) {
	container.Find("dt").Each(func(_ int, term *goquery.Selection) {
		def := term.Next()
		if goquery.NodeName(def) != "dd" {
			return
		}
		key := NormalizeKey(term.Text())
		if key == "" {
			return
		}

		if mail, ok := def.Find(`a[href^="mailto:"]`).Attr("href"); ok {
			fragment.Set(models.FieldEmail, strings.TrimPrefix(mail, "mailto:"))
		}
		if website := x.websiteLink(def, pageURL); website != "" {
			fragment.Set(models.FieldWebsite, website)
		}

		if x.otherInfoKey != "" && strings.Contains(key, x.otherInfoKey) {
			x.parseOtherInfo(CleanText(def.Text()), fragment)
			return
		}

		value := CleanText(def.Text())
		if x.linkLists[key] {
			var names []string
			def.Find("a").Each(func(_ int, a *goquery.Selection) {
				if t := CleanText(a.Text()); t != "" {
					names = append(names, t)
				}
			})
			if len(names) > 0 {
				value = strings.Join(names, ", ")
			}
		}
		fragment.Set(x.alias(key), value)
	})
}

func (x *SecondaryExtractor) alias(key string) string {
	for _, a := range x.aliases {
		if strings.Contains(key, a.Match) {
			return a.Field
		}
	}
	return key
}

// websiteLink 定义中第一个指向外部站点的链接
func (x *SecondaryExtractor) websiteLink(def *goquery.Selection, pageURL *url.URL) string {
	var website string
	def.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return true
		}
		abs, ok := absoluteHTTP(href, pageURL)
		if !ok || hostExcluded(abs, x.excludeHosts) {
			return true
		}
		website = abs
		return false
	})
	return website
}

// parseOtherInfo 解析 "Cuisines: Italian, Pizza Price Range: Moderate" 形式的文本
// 每个值截止到下一个已知标签
func (x *SecondaryExtractor) parseOtherInfo(text string, fragment *models.Fragment) {
	if x.otherLabels == nil {
		return
	}
	matches := x.otherLabels.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		label := strings.ToLower(text[m[2]:m[3]])
		value := strings.TrimRight(strings.TrimSpace(text[m[1]:end]), ".")
		if field, ok := x.otherFields[label]; ok {
			fragment.Set(field, value)
		}
	}
}
