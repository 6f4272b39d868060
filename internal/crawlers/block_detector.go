package crawlers

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/furqank73/Web-Scraping/internal/models"
)

// BlockIndicators 拦截特征
type BlockIndicators struct {
	Selectors     []string // 验证码控件、安全检查横幅
	Phrases       []string // 页面可见文本中的拦截提示
	TitleKeywords []string // 标题关键词,不区分大小写
}

// BlockDetector 检查已加载的页面是否是拦截页
type BlockDetector struct {
	selectors []cascadia.Selector
	raw       []string
	phrases   []string
	keywords  []string
}

// NewBlockDetector 编译拦截特征中的选择器
func NewBlockDetector(ind BlockIndicators) (*BlockDetector, error) {
	d := &BlockDetector{raw: ind.Selectors}
	for _, sel := range ind.Selectors {
		compiled, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("无效的拦截选择器 %q: %w", sel, err)
		}
		d.selectors = append(d.selectors, compiled)
	}
	for _, p := range ind.Phrases {
		d.phrases = append(d.phrases, strings.ToLower(p))
	}
	for _, k := range ind.TitleKeywords {
		d.keywords = append(d.keywords, strings.ToLower(k))
	}
	return d, nil
}

// Detect 命中任一选择器、可见文本提示或标题关键词时返回拦截事件
func (d *BlockDetector) Detect(title, html string, attempt int) *models.BlockEvent {
	event := func(indicator string) *models.BlockEvent {
		return &models.BlockEvent{Indicator: indicator, TitleSnapshot: title, Attempt: attempt}
	}

	lowerTitle := strings.ToLower(title)
	for _, k := range d.keywords {
		if k != "" && strings.Contains(lowerTitle, k) {
			return event("title:" + k)
		}
	}

	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	for i, sel := range d.selectors {
		if doc.FindMatcher(sel).Length() > 0 {
			return event("selector:" + d.raw[i])
		}
	}

	if len(d.phrases) > 0 {
		doc.Find("script, style, noscript, template").Remove()
		text := strings.ToLower(doc.Find("body").Text())
		for _, p := range d.phrases {
			if p != "" && strings.Contains(text, p) {
				return event("text:" + p)
			}
		}
	}
	return nil
}
