package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// Options 提取流水线配置,来自站点配置文件
type Options struct {
	Source       string            `mapstructure:"source" yaml:"source"`
	ExcludeHosts []string          `mapstructure:"exclude_hosts" yaml:"exclude_hosts"` // 不作为商家网站的域名
	Structured   StructuredOptions `mapstructure:"structured" yaml:"structured"`
	Secondary    SecondaryOptions  `mapstructure:"secondary" yaml:"secondary"`
	DOM          DOMOptions        `mapstructure:"dom" yaml:"dom"`
	Enrichment   EnrichmentOptions `mapstructure:"enrichment" yaml:"enrichment"`
	NoEnrichment bool              `mapstructure:"no_enrichment" yaml:"no_enrichment"`
}

// PageSnapshot 详情页加载完成后的快照
type PageSnapshot struct {
	URL   string
	Title string
	HTML  string
}

// Pipeline 按优先级运行各提取策略并合并为一条记录
type Pipeline struct {
	source     string
	structured *StructuredExtractor
	secondary  *SecondaryExtractor
	dom        *DOMExtractor
	enricher   *Enricher
	now        func() time.Time
}

// NewPipeline 编译所有策略的选择器,选择器无效时返回错误
func NewPipeline(opts Options) (*Pipeline, error) {
	structured, err := NewStructuredExtractor(opts.Structured)
	if err != nil {
		return nil, fmt.Errorf("结构化数据配置无效: %w", err)
	}
	secondary, err := NewSecondaryExtractor(opts.Secondary, opts.ExcludeHosts)
	if err != nil {
		return nil, fmt.Errorf("更多信息配置无效: %w", err)
	}
	dom, err := NewDOMExtractor(opts.DOM, opts.ExcludeHosts)
	if err != nil {
		return nil, fmt.Errorf("DOM回退配置无效: %w", err)
	}

	p := &Pipeline{
		source:     opts.Source,
		structured: structured,
		secondary:  secondary,
		dom:        dom,
		now:        time.Now,
	}
	if !opts.NoEnrichment {
		p.enricher = NewEnricher(opts.Enrichment)
	}
	return p, nil
}

// Extract 从快照中提取一条记录
// 提取不到名称且没有可用标题时,记录带 extraction_error 返回,不视为错误
func (p *Pipeline) Extract(target models.TargetDescriptor, snap PageSnapshot) (models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return models.Record{}, fmt.Errorf("解析HTML失败: %w", err)
	}

	pageURL := snap.URL
	if pageURL == "" {
		pageURL = target.URL
	}
	base, _ := url.Parse(pageURL)
	root := doc.Selection

	fragments := make([]*models.Fragment, 0, 4)

	structured, err := p.structured.Extract(root)
	if err != nil {
		utils.Logger.Debug().Err(err).Str("url", target.URL).Msg("结构化数据无效,使用其它策略")
	}
	fragments = append(fragments, structured)
	fragments = append(fragments, p.secondary.Extract(root, base))

	if structured.Empty() {
		fragments = append(fragments, p.dom.Extract(root, base))
	}
	if p.enricher != nil {
		fragments = append(fragments, p.enricher.Extract(root, base))
	}

	fields := Merge(fragments...)
	p.stampProvenance(fields, target)

	if models.IsEmptyValue(fields[models.FieldName]) {
		if name := fallbackName(target, snap.Title); name != "" {
			fields[models.FieldName] = name
		} else {
			fields[models.FieldExtractionError] = models.ErrExtractionIncomplete.Error()
			fields[models.FieldErrorKind] = models.ErrorKindIncomplete
		}
	}

	return models.NewRecord(Normalize(fields)), nil
}

// StubRecord 目标失败时的占位记录: 名称取发现时的标题并带上错误信息
func (p *Pipeline) StubRecord(target models.TargetDescriptor, cause error) models.Record {
	if cause == nil {
		cause = errors.New("未知错误")
	}
	fields := map[string]any{
		models.FieldName:            target.DiscoveredTitle,
		models.FieldExtractionError: cause.Error(),
		models.FieldErrorKind:       models.ClassifyError(cause),
	}
	p.stampProvenance(fields, target)
	return models.NewRecord(fields)
}

func (p *Pipeline) stampProvenance(fields map[string]any, target models.TargetDescriptor) {
	fields[models.FieldListingURL] = target.URL
	fields[models.FieldScrapedAt] = p.now().Format(time.RFC3339)
	if p.source != "" {
		fields[models.FieldSource] = p.source
	}
	if _, ok := fields[models.FieldListingID]; !ok {
		if id := models.ListingIDFromURL(target.URL); id != "" {
			fields[models.FieldListingID] = id
		}
	}
}

var titlePrefix = regexp.MustCompile(`^([^|]+?)(\s+-\s+|\s*\|)`)

// fallbackName 先用列表页标题,再用页面标题中 " - " 或 "|" 之前的部分
func fallbackName(target models.TargetDescriptor, pageTitle string) string {
	if target.HasTitle() {
		return target.DiscoveredTitle
	}
	pageTitle = CleanText(pageTitle)
	if m := titlePrefix.FindStringSubmatch(pageTitle); m != nil {
		return strings.TrimSpace(m[1])
	}
	return pageTitle
}
