package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 在 <outputDir>/reports 下写运行报告
type Reporter struct {
	dir  string
	site string
}

func NewReporter(outputDir, site string) *Reporter {
	return &Reporter{dir: filepath.Join(outputDir, "reports"), site: site}
}

// GenerateReport 写入运行报告并返回其路径
// 有失败目标时另写一份 failed_targets 列表供重新采集
func (r *Reporter) GenerateReport(report *models.HarvestReport) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	if report.FailedTargets == nil {
		report.FailedTargets = []models.FailedTarget{}
	}

	path := r.path("harvest_report", report.EndTime)
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	if len(report.FailedTargets) > 0 {
		if err := writeJSON(r.path("failed_targets", report.EndTime), report.FailedTargets); err != nil {
			return "", err
		}
	}

	Infof("报告已生成: %s", path)
	return path, nil
}

func (r *Reporter) path(kind string, at time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s_%s.json", kind, r.site, Timestamp(at)))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	return nil
}

// NewProgressBar 详情页提取进度,写到stderr
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("条"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "|",
			BarEnd:        "|",
		}),
	)
}
