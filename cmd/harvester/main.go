package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/core"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 采集参数
	searchTerm  string
	location    string
	seedURL     string
	queryFile   string
	pages       int
	workers     int
	batchSize   int
	mode        string
	headless    bool
	resume      bool
	noShuffle   bool
	resourceCap bool
	debugOutput bool
	outputDir   string
	siteProfile string
	headerFile  string
	sqlitePath  string
	proxies     []string
	proxyFile   string
	taskTimeout int
	runTimeout  int

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "商家目录页并发采集工具",
	Long: `Harvester - 商家目录站点的并发采集工具

按搜索词和地点访问列表页,发现商家详情页并并发提取结构化记录:
  • 每个会话随机浏览器指纹
  • 拦截检测与退避重试
  • 选择器回退链和多策略提取
  • 浏览器和静态HTTP两种模式
  • JSON / CSV / SQLite 输出
  • 检查点恢复和批量查询

示例:
  harvester -s pizza -l "New York, NY"
  harvester -u "https://www.yellowpages.com/search?search_terms=pizza&geo_location_terms=Austin" -p 5
  harvester -f queries.txt --batch-delay 30
  harvester -s pizza -l "Austin, TX" -m static -H "Referer: https://www.google.com/"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := cfg.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		appConfig.MergeCLIFlags(overridesFrom(cmd))

		headerManager, err := core.NewHeaderManager(appConfig.Site.HeaderFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if searchTerm == "" && location == "" && seedURL == "" && queryFile == "" {
			return cmd.Help()
		}

		if err := ValidateFlags(seedURL, pages, workers, batchSize, mode, taskTimeout, runTimeout); err != nil {
			return err
		}

		site, err := config.LoadSiteProfile(appConfig.Site.Profile)
		if err != nil {
			return fmt.Errorf("加载站点配置失败: %w", err)
		}

		if queryFile != "" {
			return runBatch(ctx, queryFile, site, headerManager)
		}

		harvester, err := core.NewHarvester(appConfig, site, headerManager)
		if err != nil {
			return fmt.Errorf("创建采集器失败: %w", err)
		}
		if _, err := harvester.Run(ctx); err != nil {
			return fmt.Errorf("采集失败: %w", err)
		}
		if ctx.Err() != nil {
			utils.Warn("采集被中断, 已保存完成的记录")
			return nil
		}

		utils.Info("✨ 采集任务完成!")
		return nil
	},
}

// overridesFrom 收集命令行参数,布尔参数只有显式指定时才覆盖配置文件
func overridesFrom(cmd *cobra.Command) core.CLIOverrides {
	o := core.CLIOverrides{
		SearchTerm:  searchTerm,
		Location:    location,
		SeedURL:     seedURL,
		PageLimit:   pages,
		Concurrency: workers,
		BatchSize:   batchSize,
		Mode:        mode,
		OutputDir:   outputDir,
		SiteProfile: siteProfile,
		HeaderFile:  headerFile,
		SQLite:      sqlitePath,
		Proxies:     proxies,
		ProxyFile:   proxyFile,
		TaskTimeout: taskTimeout,
		RunTimeout:  runTimeout,
	}
	flags := cmd.Flags()
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("resume") {
		o.Resume = &resume
	}
	if flags.Changed("no-shuffle") {
		o.NoShuffle = &noShuffle
	}
	if flags.Changed("resource-cap") {
		o.ResourceCap = &resourceCap
	}
	if flags.Changed("debug") {
		o.Debug = &debugOutput
	}
	return o
}

func runValidateConfig(hm *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := hm.LoadConfig(); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}
	site, err := config.LoadSiteProfile(appConfig.Site.Profile)
	if err != nil {
		return fmt.Errorf("站点配置无效: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("站点: %s", site.Name)
	utils.Infof("自定义HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Harvester %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 采集参数
	rootCmd.PersistentFlags().StringVarP(&searchTerm, "search", "s", "", "搜索词")
	rootCmd.PersistentFlags().StringVarP(&location, "location", "l", "", "地点")
	rootCmd.PersistentFlags().StringVarP(&seedURL, "url", "u", "", "直接指定第一页列表URL")
	rootCmd.PersistentFlags().StringVarP(&queryFile, "query-file", "f", "", "批量查询文件,每行 '搜索词|地点'")
	rootCmd.PersistentFlags().IntVarP(&pages, "pages", "p", 0, "列表页数量 (1-100, 默认3)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "并发任务数 (1-50, 默认4)")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "每个会话处理的目标数 (1-20, 默认1)")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "", "页面获取方式 (browser|static)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().BoolVar(&resume, "resume", false, "从检查点恢复")
	rootCmd.PersistentFlags().BoolVar(&noShuffle, "no-shuffle", false, "按发现顺序处理目标")
	rootCmd.PersistentFlags().BoolVar(&resourceCap, "resource-cap", true, "根据系统内存限制并发")
	rootCmd.PersistentFlags().BoolVar(&debugOutput, "debug", true, "失败时保存截图和HTML")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "输出目录")
	rootCmd.PersistentFlags().StringVar(&siteProfile, "site-profile", "", "站点配置文件 (默认使用内置的yellowpages)")
	rootCmd.PersistentFlags().StringVar(&headerFile, "header-file", "", "HTTP头部配置文件")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "同时写入SQLite数据库")
	rootCmd.PersistentFlags().StringSliceVar(&proxies, "proxy", []string{}, "代理地址,可多次指定")
	rootCmd.PersistentFlags().StringVar(&proxyFile, "proxy-file", "", "代理列表文件")
	rootCmd.PersistentFlags().IntVar(&taskTimeout, "task-timeout", 0, "单个目标超时(秒)")
	rootCmd.PersistentFlags().IntVar(&runTimeout, "run-timeout", 0, "整次运行超时(秒)")

	// 批量处理参数
	rootCmd.PersistentFlags().IntVar(&batchDelay, "batch-delay", 10, "批量查询间延迟(秒)")
	rootCmd.PersistentFlags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		if models.IsConfigError(err) {
			fmt.Fprintln(os.Stderr, "提示: 使用 --validate-config 检查配置文件")
		}
		os.Exit(1)
	}
}
