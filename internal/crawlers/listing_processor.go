package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/furqank73/Web-Scraping/internal/extract"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// ListingProcessor 打开详情页并运行提取流水线
type ListingProcessor struct {
	navigator    *Navigator
	pipeline     *extract.Pipeline
	waitSelector string
	waitTimeout  time.Duration
	debug        *DebugRecorder
}

// NewListingProcessor 创建详情页处理器
func NewListingProcessor(navigator *Navigator, pipeline *extract.Pipeline, waitSelectors []string, waitTimeout time.Duration, debug *DebugRecorder) *ListingProcessor {
	if waitTimeout <= 0 {
		waitTimeout = 20 * time.Second
	}
	return &ListingProcessor{
		navigator:    navigator,
		pipeline:     pipeline,
		waitSelector: strings.Join(waitSelectors, ", "),
		waitTimeout:  waitTimeout,
		debug:        debug,
	}
}

// Process 实现 TargetProcessor
func (lp *ListingProcessor) Process(ctx context.Context, session Session, target models.TargetDescriptor) (models.Record, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return models.Record{}, fmt.Errorf("打开页面失败: %w", err)
	}
	defer page.Close()

	nav, err := lp.navigator.Navigate(ctx, page, target.URL, NavigateOptions{Viewport: session.Profile().Viewport})
	if err != nil {
		var blocked *models.BlockedError
		if errors.As(err, &blocked) {
			lp.debug.Capture(ctx, page, "blocked_"+listingReason(target))
		}
		return models.Record{}, err
	}

	if lp.waitSelector != "" {
		if err := page.WaitAttached(ctx, lp.waitSelector, lp.waitTimeout); err != nil {
			utils.Logger.Debug().Err(err).Str("url", target.URL).Msg("详情页标记未出现,继续提取")
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return models.Record{}, fmt.Errorf("读取详情页HTML失败: %w", err)
	}

	record, err := lp.pipeline.Extract(target, extract.PageSnapshot{URL: target.URL, Title: nav.Title, HTML: html})
	if err != nil {
		lp.debug.Capture(ctx, page, "failed_"+listingReason(target))
		return models.Record{}, err
	}
	if record.Failed() {
		lp.debug.Capture(ctx, page, "incomplete_"+listingReason(target))
	}
	return record, nil
}

// Stub 实现 TargetProcessor
func (lp *ListingProcessor) Stub(target models.TargetDescriptor, cause error) models.Record {
	return lp.pipeline.StubRecord(target, cause)
}

func listingReason(target models.TargetDescriptor) string {
	if id := models.ListingIDFromURL(target.URL); id != "" {
		return id
	}
	return target.DiscoveredTitle
}
