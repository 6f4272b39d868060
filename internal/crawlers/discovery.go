package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/extract"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// DiscoveryConfig 列表页分页和选择器
type DiscoveryConfig struct {
	BaseURL          string
	PageLimit        int
	StartPage        int // 断点续爬时从这一页开始
	PageURL          func(base string, page int) (string, error)
	ResultsContainer []string
	ContainerTimeout time.Duration
	ListingSelectors []string
	PathFilters      []string
}

// DiscoveryStats 发现阶段统计
type DiscoveryStats struct {
	PagesVisited int
	PagesEmpty   int
	PagesBlocked int
	TargetsFound int
}

type listingLink struct {
	href  string
	title string
}

// Discoverer 逐页访问列表页并收集去重后的详情页目标
type Discoverer struct {
	cfg       DiscoveryConfig
	provider  SessionProvider
	profiles  *ProfileGenerator
	navigator *Navigator
	debug     *DebugRecorder
	listing   extract.Chain[listingLink]
	targets   *TargetSet

	// OnPage 每个列表页处理完后调用,用于保存断点; err 非空表示该页失败
	OnPage func(page int, added []models.TargetDescriptor, err error)
}

// NewDiscoverer 创建发现阶段,选择器无效时返回错误
func NewDiscoverer(cfg DiscoveryConfig, provider SessionProvider, profiles *ProfileGenerator, navigator *Navigator, debug *DebugRecorder) (*Discoverer, error) {
	if cfg.PageLimit < 1 {
		return nil, fmt.Errorf("页数必须大于0")
	}
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if cfg.PageURL == nil {
		return nil, fmt.Errorf("缺少分页URL生成函数")
	}
	if cfg.ContainerTimeout <= 0 {
		cfg.ContainerTimeout = 15 * time.Second
	}

	filters := cfg.PathFilters
	chain, err := extract.CompileChain(cfg.ListingSelectors, func(s *goquery.Selection) (listingLink, bool) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || !matchesPath(href, filters) {
			return listingLink{}, false
		}
		title := extract.CleanText(s.Text())
		if title == "" {
			title, _ = s.Attr("title")
		}
		return listingLink{href: href, title: title}, true
	})
	if err != nil {
		return nil, err
	}

	return &Discoverer{
		cfg:       cfg,
		provider:  provider,
		profiles:  profiles,
		navigator: navigator,
		debug:     debug,
		listing:   chain,
		targets:   NewTargetSet(),
	}, nil
}

// Seed 断点续爬时预先加入已发现的目标
func (d *Discoverer) Seed(targets []models.TargetDescriptor) {
	d.targets.AddAll(targets)
}

// Discover 访问第 StartPage..PageLimit 页
// 单个列表页失败只跳过该页,取消时返回已发现的目标
func (d *Discoverer) Discover(ctx context.Context) ([]models.TargetDescriptor, DiscoveryStats) {
	var stats DiscoveryStats

	for page := d.cfg.StartPage; page <= d.cfg.PageLimit; page++ {
		if ctx.Err() != nil {
			utils.Warnf("发现阶段被取消,停在第%d页", page)
			break
		}

		pageURL, err := d.cfg.PageURL(d.cfg.BaseURL, page)
		if err != nil {
			utils.Errorf("生成第%d页URL失败: %v", page, err)
			continue
		}

		log := utils.Logger.With().Int("page", page).Str("url", pageURL).Logger()
		log.Info().Msg("📄 访问列表页")

		found, err := d.discoverPage(ctx, pageURL, page, page == d.cfg.StartPage)
		stats.PagesVisited++
		var blocked *models.BlockedError
		switch {
		case errors.As(err, &blocked):
			stats.PagesBlocked++
			log.Warn().Err(err).Msg("列表页被拦截,跳过")
		case err != nil:
			log.Warn().Err(err).Msg("列表页处理失败,跳过")
		}

		added := d.targets.AddAll(found)
		if len(found) == 0 {
			stats.PagesEmpty++
			log.Warn().Err(models.ErrSelectorNotFound).Msg("列表页没有发现目标")
		} else {
			log.Info().Int("found", len(found)).Int("new", len(added)).Int("total", d.targets.Len()).Msg("列表页处理完成")
		}

		if d.OnPage != nil {
			d.OnPage(page, added, err)
		}
	}

	stats.TargetsFound = d.targets.Len()
	return d.targets.Targets(), stats
}

// discoverPage 每个列表页使用一个新会话
func (d *Discoverer) discoverPage(ctx context.Context, pageURL string, pageNum int, first bool) ([]models.TargetDescriptor, error) {
	profile := d.profiles.Generate()
	session, err := d.provider.AcquireSession(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	defer func() {
		if err := d.provider.ReleaseSession(session); err != nil {
			utils.Warnf("释放会话失败: %v", err)
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if _, err := d.navigator.Navigate(ctx, page, pageURL, NavigateOptions{ForceDetour: first, Viewport: profile.Viewport}); err != nil {
		return nil, err
	}

	if len(d.cfg.ResultsContainer) > 0 {
		selector := strings.Join(d.cfg.ResultsContainer, ", ")
		if err := page.WaitAttached(ctx, selector, d.cfg.ContainerTimeout); err != nil {
			utils.Logger.Warn().Err(err).Int("page", pageNum).Msg("未找到结果容器")
			d.debug.Capture(ctx, page, fmt.Sprintf("no_results_page_%d", pageNum))
			return nil, nil
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取列表页HTML失败: %w", err)
	}
	return d.parseListings(html, pageURL, pageNum)
}

// parseListings 用选择器回退链解析列表页,第一个有结果的选择器胜出
func (d *Discoverer) parseListings(html, pageURL string, pageNum int) ([]models.TargetDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析列表页HTML失败: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	links, selector, err := d.listing.All(doc.Selection)
	if err != nil {
		return nil, nil
	}
	utils.Logger.Debug().Str("selector", selector).Int("links", len(links)).Msg("列表选择器命中")

	seen := make(map[string]bool, len(links))
	targets := make([]models.TargetDescriptor, 0, len(links))
	for _, link := range links {
		t, err := models.NewTargetDescriptor(link.href, link.title, pageNum, base)
		if err != nil || seen[t.URL] {
			continue
		}
		seen[t.URL] = true
		targets = append(targets, t)
	}
	return targets, nil
}

func matchesPath(href string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(href, f) {
			return true
		}
	}
	return false
}
