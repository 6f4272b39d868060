package crawlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/furqank73/Web-Scraping/internal/utils"
)

// DebugRecorder 失败时保存页面截图和HTML
// 文件名: <reason>_<HHMMSS>.png / .html
type DebugRecorder struct {
	dir     string
	enabled bool
	now     func() time.Time
}

// NewDebugRecorder 在 outputDir/debug 下保存调试文件
func NewDebugRecorder(outputDir string, enabled bool) *DebugRecorder {
	return &DebugRecorder{
		dir:     filepath.Join(outputDir, "debug"),
		enabled: enabled,
		now:     time.Now,
	}
}

// Capture 保存当前页面,返回写入的文件
// 调试文件写入失败只记录日志
func (d *DebugRecorder) Capture(ctx context.Context, page Page, reason string) []string {
	if d == nil || !d.enabled || page == nil {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		utils.Warnf("创建调试目录失败: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	base := filepath.Join(d.dir, fmt.Sprintf("%s_%s", utils.SafeFileName(reason, 80), d.now().Format("150405")))
	var written []string

	if shot, err := page.Screenshot(ctx); err == nil {
		if err := os.WriteFile(base+".png", shot, 0644); err == nil {
			written = append(written, base+".png")
		}
	} else if !errors.Is(err, ErrScreenshotUnsupported) {
		utils.Logger.Debug().Err(err).Str("reason", reason).Msg("截图失败")
	}

	if html, err := page.HTML(ctx); err == nil && html != "" {
		if err := os.WriteFile(base+".html", []byte(html), 0644); err == nil {
			written = append(written, base+".html")
		}
	}

	if len(written) > 0 {
		utils.Logger.Info().Str("reason", reason).Strs("files", written).Msg("已保存调试文件")
	}
	return written
}
