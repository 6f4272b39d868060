package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
)

// FieldRule 直接DOM回退中一个字段的选择器回退链
type FieldRule struct {
	Field     string   `mapstructure:"field" yaml:"field"`
	Selectors []string `mapstructure:"selectors" yaml:"selectors"`
	Attr      string   `mapstructure:"attr" yaml:"attr"`   // 读取属性而不是文本
	Strip     string   `mapstructure:"strip" yaml:"strip"` // 去掉的前缀,例如 tel:
	Kind      string   `mapstructure:"kind" yaml:"kind"`   // text 或 url
	Join      string   `mapstructure:"join" yaml:"join"`   // 非空时连接命中选择器的全部结果
}

// DOMOptions 直接DOM回退配置
type DOMOptions struct {
	Fields []FieldRule `mapstructure:"fields" yaml:"fields"`
}

type domField struct {
	rule  FieldRule
	chain Chain[string]
}

// DOMExtractor 结构化数据缺失时按选择器直接读取页面
type DOMExtractor struct {
	fields       []domField
	excludeHosts []string
}

// NewDOMExtractor 编译每个字段的回退链
func NewDOMExtractor(opts DOMOptions, excludeHosts []string) (*DOMExtractor, error) {
	x := &DOMExtractor{excludeHosts: excludeHosts}
	for _, rule := range opts.Fields {
		if rule.Field == "" || len(rule.Selectors) == 0 {
			return nil, fmt.Errorf("DOM回退规则缺少字段名或选择器: %+v", rule)
		}
		chain, err := CompileChain(rule.Selectors, readerFor(rule))
		if err != nil {
			return nil, fmt.Errorf("字段 %s: %w", rule.Field, err)
		}
		x.fields = append(x.fields, domField{rule: rule, chain: chain})
	}
	return x, nil
}

func readerFor(rule FieldRule) func(*goquery.Selection) (string, bool) {
	return func(s *goquery.Selection) (string, bool) {
		var value string
		if rule.Attr != "" {
			v, ok := s.Attr(rule.Attr)
			if !ok {
				return "", false
			}
			value = strings.TrimSpace(v)
		} else {
			value = CleanText(s.Text())
		}
		if rule.Strip != "" {
			value = strings.TrimSpace(strings.TrimPrefix(value, rule.Strip))
		}
		return value, value != ""
	}
}

// Extract 按字段依次尝试选择器
func (x *DOMExtractor) Extract(doc *goquery.Selection, pageURL *url.URL) *models.Fragment {
	fragment := models.NewFragment(models.StrategyDOM)

	for _, f := range x.fields {
		if f.rule.Kind == KindURL {
			x.extractURL(doc, pageURL, f, fragment)
			continue
		}
		if f.rule.Join != "" {
			if values, _, err := f.chain.All(doc); err == nil {
				fragment.Set(f.rule.Field, strings.Join(dedupStrings(values), f.rule.Join))
			}
			continue
		}
		if value, _, ok := f.chain.First(doc); ok {
			fragment.Set(f.rule.Field, value)
		}
	}
	return fragment
}

// extractURL 链接字段: 只接受指向外部站点的http(s)链接
func (x *DOMExtractor) extractURL(doc *goquery.Selection, pageURL *url.URL, f domField, fragment *models.Fragment) {
	values, _, err := f.chain.All(doc)
	if err != nil {
		return
	}
	for _, v := range values {
		abs, ok := absoluteHTTP(v, pageURL)
		if ok && !hostExcluded(abs, x.excludeHosts) {
			fragment.Set(f.rule.Field, abs)
			return
		}
	}
}

func dedupStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
