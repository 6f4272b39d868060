package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
)

func TestReporter_GenerateReport(t *testing.T) {
	outputDir := t.TempDir()
	reporter := NewReporter(outputDir, "yellowpages")

	end := time.Date(2025, 5, 16, 10, 30, 0, 0, time.UTC)
	report := &models.HarvestReport{
		TaskID:    "task-1",
		Site:      "yellowpages",
		StartTime: end.Add(-time.Minute),
		EndTime:   end,
		Stats:     models.HarvestStats{Records: 3, Failed: 1},
		FailedTargets: []models.FailedTarget{
			{URL: "https://example.com/mip/a-1", ErrorType: "blocked"},
		},
	}

	path, err := reporter.GenerateReport(report)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	if filepath.Base(path) != "harvest_report_yellowpages_20250516_103000.json" {
		t.Errorf("报告文件名错误: %s", filepath.Base(path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	if !strings.Contains(string(content), `"records": 3`) {
		t.Errorf("报告内容缺少统计信息: %s", content)
	}

	failed := filepath.Join(outputDir, "reports", "failed_targets_yellowpages_20250516_103000.json")
	if _, err := os.Stat(failed); err != nil {
		t.Errorf("失败目标文件未生成: %v", err)
	}
}

func TestReporter_NoFailures(t *testing.T) {
	outputDir := t.TempDir()
	report := &models.HarvestReport{Site: "yellowpages", EndTime: time.Now()}

	path, err := NewReporter(outputDir, "yellowpages").GenerateReport(report)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	if !strings.Contains(string(content), `"failed_targets": []`) {
		t.Errorf("没有失败目标时应写出空数组: %s", content)
	}

	failed, _ := filepath.Glob(filepath.Join(outputDir, "reports", "failed_targets_*.json"))
	if len(failed) != 0 {
		t.Errorf("不应生成失败目标文件: %v", failed)
	}
}
