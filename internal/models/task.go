package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// HarvestMode 页面获取方式
type HarvestMode string

const (
	ModeBrowser HarvestMode = "browser" // 无头浏览器,适合JS渲染页面
	ModeStatic  HarvestMode = "static"  // 普通HTTP客户端,适合静态页面
)

// HarvestStats 采集统计
type HarvestStats struct {
	PagesVisited int     `json:"pages_visited"` // 访问过的列表页
	PagesEmpty   int     `json:"pages_empty"`   // 没有发现目标的列表页
	PagesBlocked int     `json:"pages_blocked"` // 被拦截放弃的列表页
	TargetsFound int     `json:"targets_found"` // 去重后的目标数
	Records      int     `json:"records"`       // 输出记录数
	Succeeded    int     `json:"succeeded"`     // 成功记录数
	Failed       int     `json:"failed"`        // 带错误标记的记录数
	WithPhone    int     `json:"with_phone"`    // 含电话的记录数
	PeakSessions int     `json:"peak_sessions"` // 同时打开的最大会话数
	Duration     float64 `json:"duration"`      // 总耗时(秒)
}

// HarvestConfig 采集配置
type HarvestConfig struct {
	SearchTerm  string      `json:"search_term" mapstructure:"search_term"`   // 搜索词
	Location    string      `json:"location" mapstructure:"location"`         // 地点
	SeedURL     string      `json:"seed_url" mapstructure:"seed_url"`         // 直接指定的列表页URL,优先于搜索词
	PageLimit   int         `json:"page_limit" mapstructure:"page_limit"`     // 列表页数量 (默认:3)
	Concurrency int         `json:"concurrency" mapstructure:"concurrency"`   // 同时处理的任务数 (默认:4)
	BatchSize   int         `json:"batch_size" mapstructure:"batch_size"`     // 每个会话处理的目标数 (默认:1)
	Shuffle     bool        `json:"shuffle" mapstructure:"shuffle"`           // 派发前打乱目标顺序 (默认:true)
	Mode        HarvestMode `json:"mode" mapstructure:"mode"`                 // browser 或 static
	Headless    bool        `json:"headless" mapstructure:"headless"`         // 无头模式 (默认:true)
	Resume      bool        `json:"resume" mapstructure:"resume"`             // 从检查点恢复目标列表
	TaskTimeout int         `json:"task_timeout" mapstructure:"task_timeout"` // 单个目标超时(秒)
	RunTimeout  int         `json:"run_timeout" mapstructure:"run_timeout"`   // 整次运行超时(秒), 0表示不限制
	ResourceCap bool        `json:"resource_cap" mapstructure:"resource_cap"` // 根据系统资源限制并发
}

// Validate 验证配置
func (c *HarvestConfig) Validate() error {
	if c.SeedURL == "" && (strings.TrimSpace(c.SearchTerm) == "" || strings.TrimSpace(c.Location) == "") {
		return fmt.Errorf("必须指定种子URL, 或同时指定搜索词和地点")
	}
	if c.SeedURL != "" {
		if err := ValidateURL(c.SeedURL); err != nil {
			return err
		}
	}
	if c.PageLimit < 1 || c.PageLimit > 100 {
		return fmt.Errorf("页数必须在1-100之间")
	}
	if c.Concurrency < 1 || c.Concurrency > 50 {
		return fmt.Errorf("并发数必须在1-50之间")
	}
	if c.BatchSize < 1 || c.BatchSize > 20 {
		return fmt.Errorf("批大小必须在1-20之间")
	}
	if c.Mode != ModeBrowser && c.Mode != ModeStatic {
		return fmt.Errorf("无效的模式: %q (可选: browser, static)", c.Mode)
	}
	if c.TaskTimeout < 0 || c.RunTimeout < 0 {
		return fmt.Errorf("超时时间不能为负数")
	}
	return nil
}

// HarvestTask 一次采集任务
type HarvestTask struct {
	// 基本信息
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	Site        string     `json:"site"`                   // 站点配置名称
	StartURL    string     `json:"start_url"`              // 第一页列表URL
	Domain      string     `json:"domain"`                 // 解析的域名
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	// 配置参数
	Config HarvestConfig `json:"config"`

	// 执行状态
	Status TaskStatus  `json:"status"`
	Mode   HarvestMode `json:"mode"`

	// 统计信息
	Stats HarvestStats `json:"stats"`

	// 错误信息
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewHarvestTask 创建新任务
func NewHarvestTask(site, startURL string, config HarvestConfig) (*HarvestTask, error) {
	if err := ValidateURL(startURL); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(startURL)

	return &HarvestTask{
		ID:        newTaskID(),
		Site:      site,
		StartURL:  startURL,
		Domain:    parsed.Host,
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
		Mode:      config.Mode,
	}, nil
}

// BatchQuery 批量模式中的一条查询
type BatchQuery struct {
	SearchTerm string `json:"search_term"`
	Location   string `json:"location"`
}

// ParseBatchQuery 解析 "搜索词|地点" 格式的一行
func ParseBatchQuery(line string) (BatchQuery, error) {
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 {
		return BatchQuery{}, fmt.Errorf("格式错误: 应为 '搜索词|地点': %q", line)
	}
	q := BatchQuery{
		SearchTerm: strings.TrimSpace(parts[0]),
		Location:   strings.TrimSpace(parts[1]),
	}
	if q.SearchTerm == "" || q.Location == "" {
		return BatchQuery{}, fmt.Errorf("搜索词和地点都不能为空: %q", line)
	}
	return q, nil
}

// BatchHarvestTask 批量采集任务
type BatchHarvestTask struct {
	ID          string     `json:"id"`
	QueriesFile string     `json:"queries_file"` // 查询列表文件路径
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Config          HarvestConfig `json:"config"`
	BatchDelay      int           `json:"batch_delay"`       // 查询之间的延迟(秒)
	ContinueOnError bool          `json:"continue_on_error"` // 遇到错误继续

	Status TaskStatus `json:"status"`

	TotalQueries      int `json:"total_queries"`
	SuccessfulQueries int `json:"successful_queries"`
	FailedQueries     int `json:"failed_queries"`
	TotalRecords      int `json:"total_records"`

	SubTasks []string `json:"sub_tasks"` // 子任务ID列表
}
