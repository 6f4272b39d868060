package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/crawlers"
	"github.com/furqank73/Web-Scraping/internal/extract"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/storage"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// Harvester 一次采集任务的协调器
// 流程: 会话提供者 → 发现阶段 → 并发提取 → 聚合 → 写出结果和报告
type Harvester struct {
	cfg     *Config
	site    *config.SiteProfile
	headers models.HeaderProvider
	task    *models.HarvestTask

	outputDir string
	now       func() time.Time

	// newProvider 创建会话提供者,测试中可替换
	newProvider func() (crawlers.SessionProvider, func(), error)

	monitor *crawlers.ResourceMonitor
}

// NewHarvester 创建采集器,配置无效时返回错误
func NewHarvester(cfg *Config, site *config.SiteProfile, headers models.HeaderProvider) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	startURL := cfg.Harvest.SeedURL
	if startURL == "" {
		u, err := site.BuildSearchURL(cfg.Harvest.SearchTerm, cfg.Harvest.Location)
		if err != nil {
			return nil, err
		}
		startURL = u
	}

	task, err := models.NewHarvestTask(site.Name, startURL, cfg.Harvest)
	if err != nil {
		return nil, err
	}

	h := &Harvester{
		cfg:       cfg,
		site:      site,
		headers:   headers,
		task:      task,
		outputDir: filepath.Join(cfg.Output.BaseDir, site.Name),
		now:       time.Now,
	}
	h.newProvider = h.defaultProvider
	return h, nil
}

// Task 当前任务
func (h *Harvester) Task() *models.HarvestTask {
	return h.task
}

// OutputDir 输出目录
func (h *Harvester) OutputDir() string {
	return h.outputDir
}

// Run 执行采集
// 只有初始化失败 (浏览器、输出目录、配置) 返回错误,单个目标的失败体现在记录中
func (h *Harvester) Run(ctx context.Context) (*models.HarvestReport, error) {
	start := h.now()
	h.task.StartedAt = &start
	h.task.Status = models.TaskStatusRunning
	log := utils.Logger.With().Str("task", h.task.ID).Str("site", h.site.Name).Logger()

	log.Info().
		Str("start_url", h.task.StartURL).
		Str("mode", string(h.cfg.Harvest.Mode)).
		Int("pages", h.cfg.Harvest.PageLimit).
		Int("concurrency", h.cfg.Harvest.Concurrency).
		Msg("🚀 开始采集任务")

	if err := os.MkdirAll(filepath.Join(h.outputDir, "checkpoints"), 0755); err != nil {
		return nil, h.fail(fmt.Errorf("创建输出目录失败: %w", err))
	}

	if h.cfg.Harvest.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.cfg.Harvest.RunTimeout)*time.Second)
		defer cancel()
	}

	proxies, err := h.cfg.LoadProxies()
	if err != nil {
		return nil, h.fail(err)
	}
	provider, closeProvider, err := h.newProvider()
	if err != nil {
		return nil, h.fail(err)
	}
	defer closeProvider()

	pipeline, err := extract.NewPipeline(h.site.Extraction)
	if err != nil {
		return nil, h.fail(err)
	}
	navigator, err := h.buildNavigator()
	if err != nil {
		return nil, h.fail(err)
	}
	profiles := crawlers.NewProfileGenerator(nil, proxies)
	debug := crawlers.NewDebugRecorder(h.outputDir, h.cfg.Output.Debug)

	concurrency := h.cfg.Harvest.Concurrency
	if h.cfg.Harvest.ResourceCap {
		monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			SafetyReserveMemory: int64(h.cfg.Resource.SafetyReserveMemory) * 1024 * 1024,
			SessionMemoryUsage:  int64(h.cfg.Resource.SessionMemory) * 1024 * 1024,
			CPULoadThreshold:    h.cfg.Resource.CPULoadThreshold,
			MaxSessionsLimit:    h.cfg.Resource.MaxSessionsLimit,
		})
		concurrency = monitor.CalculateMaxSessions(concurrency)
		stopMonitor := monitor.StartMonitoring(ctx, 10*time.Second)
		defer stopMonitor()
		h.monitor = monitor
	}

	// 发现阶段
	checkpoints := newCheckpointStore(h.checkpointPath(), h.task, h.cfg.Harvest)
	targets, discoveryStats := h.discover(ctx, provider, profiles, navigator, debug, checkpoints)
	h.task.Stats.PagesVisited = discoveryStats.PagesVisited
	h.task.Stats.PagesEmpty = discoveryStats.PagesEmpty
	h.task.Stats.PagesBlocked = discoveryStats.PagesBlocked
	h.task.Stats.TargetsFound = discoveryStats.TargetsFound

	pending := checkpoints.pending(targets)
	log.Info().Int("targets", len(targets)).Int("pending", len(pending)).Msg("🔍 发现阶段完成")

	// 提取阶段
	aggregator := storage.NewAggregator()
	if h.cfg.Output.SQLite != "" {
		sink, err := storage.NewSQLiteSink(h.cfg.Output.SQLite, h.task.ID)
		if err != nil {
			log.Warn().Err(err).Msg("打开SQLite失败,跳过数据库写入")
		} else {
			defer sink.Close()
			aggregator.AddSink(sink)
		}
	}

	if len(pending) > 0 {
		bar := utils.NewProgressBar(len(pending), "提取详情页")
		processor := crawlers.NewListingProcessor(navigator, pipeline, h.site.Detail.WaitSelectors, h.site.Detail.WaitTimeout, debug)
		scheduler := crawlers.NewScheduler(h.cfg.SchedulerSettings(concurrency), provider, profiles, processor, aggregator)
		scheduler.OnRecord = func(target models.TargetDescriptor, _ models.Record) {
			bar.Add(1)
			checkpoints.complete(target.URL)
		}
		scheduler.Run(ctx, pending)
		bar.Finish()
	}

	if stats, ok := provider.(interface{ Stats() crawlers.SessionStats }); ok {
		h.task.Stats.PeakSessions = stats.Stats().Peak
	}

	// 输出
	summary := aggregator.Summary()
	records := aggregator.Drain()
	files := h.writeOutputs(records)

	end := h.now()
	h.task.CompletedAt = &end
	h.task.Status = models.TaskStatusCompleted
	h.task.Stats.Records = summary.Total
	h.task.Stats.Succeeded = summary.Succeeded()
	h.task.Stats.Failed = summary.WithError
	h.task.Stats.WithPhone = summary.WithPhone
	h.task.Stats.Duration = end.Sub(start).Seconds()

	report := h.buildReport(records, files, start, end)
	if _, err := utils.NewReporter(h.outputDir, h.site.Name).GenerateReport(report); err != nil {
		log.Warn().Err(err).Msg("生成报告失败")
	}

	h.printSummary(summary, files)
	return report, nil
}

func (h *Harvester) fail(err error) error {
	h.task.Status = models.TaskStatusFailed
	h.task.ErrorMessage = err.Error()
	return err
}

// defaultProvider 按模式创建浏览器会话池或静态会话
func (h *Harvester) defaultProvider() (crawlers.SessionProvider, func(), error) {
	if h.cfg.Harvest.Mode == models.ModeStatic {
		return crawlers.NewStaticSessionProvider(h.cfg.Static, h.headers), func() {}, nil
	}

	browser, err := crawlers.LaunchBrowser(crawlers.BrowserConfig{
		Headless:         h.cfg.Harvest.Headless,
		Bin:              h.cfg.Browser.Bin,
		NoSandbox:        h.cfg.Browser.NoSandbox,
		IgnoreCertErrors: h.cfg.Browser.IgnoreCertErrors,
	})
	if err != nil {
		return nil, nil, err
	}
	pool := crawlers.NewSessionPool(browser.Browser, h.headers)
	return pool, func() {
		pool.Close()
		browser.Close()
	}, nil
}

func (h *Harvester) buildNavigator() (*crawlers.Navigator, error) {
	detector, err := crawlers.NewBlockDetector(crawlers.BlockIndicators{
		Selectors:     h.site.Navigation.BlockSelectors,
		Phrases:       h.site.Navigation.BlockPhrases,
		TitleKeywords: h.site.Navigation.BlockTitleKeywords,
	})
	if err != nil {
		return nil, err
	}

	detours := make([]string, 0, len(h.site.Navigation.DetourURLs))
	for _, tmpl := range h.site.Navigation.DetourURLs {
		detours = append(detours, config.DetourURL(tmpl, h.cfg.Harvest.SearchTerm, h.cfg.Harvest.Location))
	}
	return crawlers.NewNavigator(h.cfg.Navigation, detector, detours, h.site.Navigation.CookieConsentSelectors), nil
}

func (h *Harvester) discover(ctx context.Context, provider crawlers.SessionProvider, profiles *crawlers.ProfileGenerator, navigator *crawlers.Navigator, debug *crawlers.DebugRecorder, checkpoints *checkpointStore) ([]models.TargetDescriptor, crawlers.DiscoveryStats) {
	startPage := 1
	var seed []models.TargetDescriptor
	if h.cfg.Harvest.Resume {
		if cp := checkpoints.resume(); cp != nil {
			seed = cp.Targets
			startPage = cp.PagesVisited + 1
			utils.Logger.Info().Int("targets", len(seed)).Int("pages", cp.PagesVisited).Msg("从检查点恢复")
		}
	}
	if startPage > h.cfg.Harvest.PageLimit {
		return seed, crawlers.DiscoveryStats{TargetsFound: len(seed)}
	}

	discoverer, err := crawlers.NewDiscoverer(crawlers.DiscoveryConfig{
		BaseURL:          h.task.StartURL,
		PageLimit:        h.cfg.Harvest.PageLimit,
		StartPage:        startPage,
		PageURL:          h.site.PageURL,
		ResultsContainer: h.site.Discovery.ResultsContainer,
		ContainerTimeout: h.site.Discovery.ContainerTimeout,
		ListingSelectors: h.site.Discovery.ListingSelectors,
		PathFilters:      h.site.Discovery.PathFilters,
	}, provider, profiles, navigator, debug)
	if err != nil {
		// 选择器已在加载站点配置时校验过
		utils.Logger.Error().Err(err).Msg("创建发现阶段失败")
		return seed, crawlers.DiscoveryStats{TargetsFound: len(seed)}
	}
	discoverer.Seed(seed)
	discoverer.OnPage = func(page int, added []models.TargetDescriptor, err error) {
		checkpoints.discovered(page, added, err == nil)
	}
	return discoverer.Discover(ctx)
}

func (h *Harvester) checkpointPath() string {
	return filepath.Join(h.outputDir, "checkpoints", models.CheckpointFilename(h.site.Name, utils.SafeFileName(h.task.Domain+"_"+h.cfg.Harvest.SearchTerm+"_"+h.cfg.Harvest.Location, 100)))
}

// writeOutputs 写出JSON和CSV,写入失败只记录日志
func (h *Harvester) writeOutputs(records []models.Record) []string {
	base := filepath.Join(h.outputDir, storage.OutputBaseName(h.site.Name, h.now()))
	var files []string

	if h.cfg.Output.JSON {
		if err := storage.WriteJSON(base+".json", records); err != nil {
			utils.Errorf("写入JSON失败: %v", err)
		} else {
			files = append(files, base+".json")
		}
	}
	if h.cfg.Output.CSV {
		if err := storage.WriteCSV(base+".csv", records); err != nil {
			utils.Errorf("写入CSV失败: %v", err)
		} else {
			files = append(files, base+".csv")
		}
	}
	return files
}

func (h *Harvester) buildReport(records []models.Record, files []string, start, end time.Time) *models.HarvestReport {
	report := &models.HarvestReport{
		TaskID:      h.task.ID,
		Site:        h.site.Name,
		StartURL:    h.task.StartURL,
		Domain:      h.task.Domain,
		Mode:        h.task.Mode,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start).Seconds(),
		Stats:       h.task.Stats,
		OutputDir:   h.outputDir,
		OutputFiles: files,
		Config:      h.cfg.Harvest,
	}
	for _, r := range records {
		if !r.Failed() {
			continue
		}
		msg := r.String(models.FieldExtractionError)
		report.FailedTargets = append(report.FailedTargets, models.FailedTarget{
			URL:       r.String(models.FieldListingURL),
			Title:     r.String(models.FieldName),
			ErrorType: errorKind(r),
			ErrorMsg:  msg,
		})
	}
	return report
}

// errorKind 记录中没有分类时归为 error
func errorKind(r models.Record) string {
	if kind := r.String(models.FieldErrorKind); kind != "" {
		return kind
	}
	return models.ErrorKindError
}

func (h *Harvester) printSummary(summary storage.Summary, files []string) {
	utils.Info("==================================================")
	utils.Info("📊 采集摘要")
	utils.Info("==================================================")
	utils.Infof("列表页: %d (空页 %d, 被拦截 %d)", h.task.Stats.PagesVisited, h.task.Stats.PagesEmpty, h.task.Stats.PagesBlocked)
	utils.Infof("发现目标: %d", h.task.Stats.TargetsFound)
	utils.Infof("✅ 成功: %d", summary.Succeeded())
	utils.Infof("❌ 失败: %d", summary.WithError)
	utils.Infof("📞 含电话: %d", summary.WithPhone)
	utils.Infof("⏱️  总耗时: %.2f秒", h.task.Stats.Duration)
	for _, f := range files {
		utils.Infof("📁 %s", f)
	}
	utils.Info("==================================================")
}

// checkpointStore 发现进度和已完成目标,写入失败只记录日志
type checkpointStore struct {
	path string

	mu sync.Mutex
	cp *models.Checkpoint
	// gap 出现失败或缺失的列表页后不再推进 PagesVisited
	gap bool
}

func newCheckpointStore(path string, task *models.HarvestTask, cfg models.HarvestConfig) *checkpointStore {
	return &checkpointStore{
		path: path,
		cp: &models.Checkpoint{
			TaskID:    task.ID,
			Site:      task.Site,
			StartURL:  task.StartURL,
			CreatedAt: time.Now(),
			Config:    cfg,
		},
	}
}

// resume 读取已有检查点,起始URL不同时忽略
func (s *checkpointStore) resume() *models.Checkpoint {
	cp, err := models.LoadCheckpointFromFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			utils.Warnf("读取检查点失败: %v", err)
		}
		return nil
	}
	if cp.StartURL != s.cp.StartURL {
		utils.Warnf("检查点的起始URL不同,忽略: %s", cp.StartURL)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Targets = cp.Targets
	s.cp.Completed = cp.Completed
	s.cp.PagesVisited = cp.PagesVisited
	s.cp.CreatedAt = cp.CreatedAt
	return cp
}

// discovered 只在连续成功的列表页上推进 PagesVisited,续爬时会重试失败页
func (s *checkpointStore) discovered(page int, added []models.TargetDescriptor, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && !s.gap && page == s.cp.PagesVisited+1 {
		s.cp.PagesVisited = page
	} else {
		s.gap = true
	}
	s.cp.Targets = append(s.cp.Targets, added...)
	s.save()
}

func (s *checkpointStore) complete(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.Completed = append(s.cp.Completed, url)
	s.save()
}

// pending 去掉上次运行已完成的目标
func (s *checkpointStore) pending(targets []models.TargetDescriptor) []models.TargetDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := models.Checkpoint{Targets: targets, Completed: s.cp.Completed}
	return view.Pending()
}

func (s *checkpointStore) save() {
	if err := s.cp.SaveToFile(s.path); err != nil {
		utils.Logger.Debug().Err(err).Str("path", s.path).Msg("保存检查点失败")
	}
}
