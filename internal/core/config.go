package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/furqank73/Web-Scraping/internal/crawlers"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Harvest    models.HarvestConfig     `mapstructure:"harvest"`
	Browser    BrowserConfig            `mapstructure:"browser"`
	Static     crawlers.StaticConfig    `mapstructure:"static"`
	Navigation crawlers.NavigatorConfig `mapstructure:"navigation"`
	Scheduler  SchedulerConfig          `mapstructure:"scheduler"`
	Resource   ResourceConfig           `mapstructure:"resource"`
	Output     OutputConfig             `mapstructure:"output"`
	Logging    LoggingConfig            `mapstructure:"logging"`
	Site       SiteConfig               `mapstructure:"site"`
}

// BrowserConfig 浏览器和代理配置
type BrowserConfig struct {
	Bin              string   `mapstructure:"bin"`
	NoSandbox        bool     `mapstructure:"no_sandbox"`
	IgnoreCertErrors bool     `mapstructure:"ignore_cert_errors"`
	Proxies          []string `mapstructure:"proxies"`    // 每个会话随机选一个
	ProxyFile        string   `mapstructure:"proxy_file"` // 每行一个代理
}

// SchedulerConfig 任务间的随机延迟
type SchedulerConfig struct {
	StartDelayMin time.Duration `mapstructure:"start_delay_min"`
	StartDelayMax time.Duration `mapstructure:"start_delay_max"`
	BetweenMin    time.Duration `mapstructure:"between_min"`
	BetweenMax    time.Duration `mapstructure:"between_max"`
}

// ResourceConfig 资源限制配置 (MB)
type ResourceConfig struct {
	SafetyReserveMemory int `mapstructure:"safety_reserve_memory"`
	SessionMemory       int `mapstructure:"session_memory"`
	CPULoadThreshold    int `mapstructure:"cpu_load_threshold"`
	MaxSessionsLimit    int `mapstructure:"max_sessions_limit"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	JSON    bool   `mapstructure:"json"`
	CSV     bool   `mapstructure:"csv"`
	SQLite  string `mapstructure:"sqlite"` // 数据库路径,为空时不写入
	Debug   bool   `mapstructure:"debug"`  // 失败时保存截图和HTML
}

// SiteConfig 站点配置文件和头部配置文件
type SiteConfig struct {
	Profile    string `mapstructure:"profile"` // 为空时使用内置配置
	HeaderFile string `mapstructure:"header_file"`
}

// LoadConfig 加载配置文件
// 找不到配置文件时使用默认值,环境变量前缀 HARVESTER_
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvester")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvester"))
		}
	}

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.page_limit", 3)
	v.SetDefault("harvest.concurrency", 4)
	v.SetDefault("harvest.batch_size", 1)
	v.SetDefault("harvest.shuffle", true)
	v.SetDefault("harvest.mode", string(models.ModeBrowser))
	v.SetDefault("harvest.headless", true)
	v.SetDefault("harvest.resume", false)
	v.SetDefault("harvest.task_timeout", 180)
	v.SetDefault("harvest.run_timeout", 0)
	v.SetDefault("harvest.resource_cap", true)

	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("static.request_timeout", 30*time.Second)
	v.SetDefault("static.chrome_tls", true)

	nav := crawlers.DefaultNavigatorConfig()
	v.SetDefault("navigation.max_attempts", nav.MaxAttempts)
	v.SetDefault("navigation.navigation_timeout", nav.NavigationTimeout)
	v.SetDefault("navigation.block_backoff_base", nav.BlockBackoffBase)
	v.SetDefault("navigation.block_jitter", nav.BlockJitter)
	v.SetDefault("navigation.error_backoff_base", nav.ErrorBackoffBase)
	v.SetDefault("navigation.error_jitter", nav.ErrorJitter)
	v.SetDefault("navigation.humanize", nav.Humanize)
	v.SetDefault("navigation.interaction_budget", nav.InteractionBudget)
	v.SetDefault("navigation.detour_probability", nav.DetourProbability)
	v.SetDefault("navigation.detour_timeout", nav.DetourTimeout)
	v.SetDefault("navigation.rate_per_second", nav.RatePerSecond)
	v.SetDefault("navigation.burst", nav.Burst)

	sched := crawlers.DefaultSchedulerConfig()
	v.SetDefault("scheduler.start_delay_min", sched.StartDelayMin)
	v.SetDefault("scheduler.start_delay_max", sched.StartDelayMax)
	v.SetDefault("scheduler.between_min", sched.BetweenMin)
	v.SetDefault("scheduler.between_max", sched.BetweenMax)

	v.SetDefault("resource.safety_reserve_memory", 1024)
	v.SetDefault("resource.session_memory", 250)
	v.SetDefault("resource.cpu_load_threshold", 85)
	v.SetDefault("resource.max_sessions_limit", 16)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.json", true)
	v.SetDefault("output.csv", true)
	v.SetDefault("output.sqlite", "")
	v.SetDefault("output.debug", true)

	v.SetDefault("site.profile", "")
	v.SetDefault("site.header_file", "")
}

// CLIOverrides 命令行参数,零值表示未指定
type CLIOverrides struct {
	SearchTerm  string
	Location    string
	SeedURL     string
	PageLimit   int
	Concurrency int
	BatchSize   int
	Mode        string
	OutputDir   string
	SiteProfile string
	HeaderFile  string
	SQLite      string
	Proxies     []string
	ProxyFile   string
	TaskTimeout int
	RunTimeout  int

	// 只有显式指定时才覆盖
	Headless    *bool
	Resume      *bool
	NoShuffle   *bool
	ResourceCap *bool
	Debug       *bool
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.SearchTerm != "" {
		c.Harvest.SearchTerm = o.SearchTerm
	}
	if o.Location != "" {
		c.Harvest.Location = o.Location
	}
	if o.SeedURL != "" {
		c.Harvest.SeedURL = o.SeedURL
	}
	if o.PageLimit > 0 {
		c.Harvest.PageLimit = o.PageLimit
	}
	if o.Concurrency > 0 {
		c.Harvest.Concurrency = o.Concurrency
	}
	if o.BatchSize > 0 {
		c.Harvest.BatchSize = o.BatchSize
	}
	if o.Mode != "" {
		c.Harvest.Mode = models.HarvestMode(o.Mode)
	}
	if o.TaskTimeout > 0 {
		c.Harvest.TaskTimeout = o.TaskTimeout
	}
	if o.RunTimeout > 0 {
		c.Harvest.RunTimeout = o.RunTimeout
	}
	if o.OutputDir != "" {
		c.Output.BaseDir = o.OutputDir
	}
	if o.SiteProfile != "" {
		c.Site.Profile = o.SiteProfile
	}
	if o.HeaderFile != "" {
		c.Site.HeaderFile = o.HeaderFile
	}
	if o.SQLite != "" {
		c.Output.SQLite = o.SQLite
	}
	if len(o.Proxies) > 0 {
		c.Browser.Proxies = o.Proxies
	}
	if o.ProxyFile != "" {
		c.Browser.ProxyFile = o.ProxyFile
	}
	if o.Headless != nil {
		c.Harvest.Headless = *o.Headless
	}
	if o.Resume != nil {
		c.Harvest.Resume = *o.Resume
	}
	if o.NoShuffle != nil {
		c.Harvest.Shuffle = !*o.NoShuffle
	}
	if o.ResourceCap != nil {
		c.Harvest.ResourceCap = *o.ResourceCap
	}
	if o.Debug != nil {
		c.Output.Debug = *o.Debug
	}
}

// Validate 验证合并后的配置
func (c *Config) Validate() error {
	if err := c.Harvest.Validate(); err != nil {
		return err
	}
	if c.Output.BaseDir == "" {
		return fmt.Errorf("输出目录不能为空")
	}
	if !c.Output.JSON && !c.Output.CSV {
		return fmt.Errorf("至少需要一种输出格式 (json 或 csv)")
	}
	if c.Navigation.MaxAttempts < 1 {
		return fmt.Errorf("导航重试次数必须大于0")
	}
	if c.Scheduler.StartDelayMax < c.Scheduler.StartDelayMin || c.Scheduler.BetweenMax < c.Scheduler.BetweenMin {
		return fmt.Errorf("延迟上限不能小于下限")
	}
	return nil
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// LoadProxies 合并配置中的代理和代理文件中的代理
func (c *Config) LoadProxies() ([]string, error) {
	proxies := append([]string(nil), c.Browser.Proxies...)
	if c.Browser.ProxyFile != "" {
		lines, err := utils.ReadLinesFromFile(c.Browser.ProxyFile)
		if err != nil {
			return nil, fmt.Errorf("读取代理文件失败: %w", err)
		}
		proxies = append(proxies, lines...)
	}
	for _, proxy := range proxies {
		if err := utils.ValidateProxy(proxy); err != nil {
			return nil, err
		}
	}
	return proxies, nil
}

// SchedulerSettings 组合出调度器配置
func (c *Config) SchedulerSettings(concurrency int) crawlers.SchedulerConfig {
	return crawlers.SchedulerConfig{
		Concurrency:   concurrency,
		BatchSize:     c.Harvest.BatchSize,
		Shuffle:       c.Harvest.Shuffle,
		StartDelayMin: c.Scheduler.StartDelayMin,
		StartDelayMax: c.Scheduler.StartDelayMax,
		BetweenMin:    c.Scheduler.BetweenMin,
		BetweenMax:    c.Scheduler.BetweenMax,
		TaskTimeout:   time.Duration(c.Harvest.TaskTimeout) * time.Second,
	}
}
