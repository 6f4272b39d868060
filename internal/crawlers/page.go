package crawlers

import (
	"context"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// Page 会话中的一个页面
// 所有等待浏览器的操作都是带超时的阻塞调用
type Page interface {
	// Navigate 加载URL并等待页面加载完成
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// WaitAttached 等待选择器对应的元素出现,超时返回 models.ErrSelectorNotFound
	WaitAttached(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	MoveMouse(ctx context.Context, x, y float64, steps int) error
	Scroll(ctx context.Context, dy float64, steps int) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Session 绑定一个指纹的隔离浏览上下文 (独立的cookie和存储)
// 同一时刻只属于一个任务
type Session interface {
	ID() string
	Profile() models.FingerprintProfile
	NewPage(ctx context.Context) (Page, error)
}

// SessionProvider 创建和销毁会话
// ReleaseSession 必须在每条退出路径上调用,释放后的会话不能再使用
type SessionProvider interface {
	AcquireSession(ctx context.Context, profile models.FingerprintProfile) (Session, error)
	ReleaseSession(session Session) error
}

// SessionStats 会话数量统计
type SessionStats struct {
	Opened int // 累计创建
	Open   int // 当前打开
	Peak   int // 同时打开的峰值
}
