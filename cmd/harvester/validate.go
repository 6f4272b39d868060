package main

import (
	"fmt"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// ValidateFlags 验证命令行标志,0 表示未指定
func ValidateFlags(seedURL string, pages, workers, batchSize int, mode string, taskTimeout, runTimeout int) error {
	if seedURL != "" {
		if err := models.ValidateURL(seedURL); err != nil {
			return fmt.Errorf("无效的列表页URL: %w", err)
		}
	}

	if pages != 0 && (pages < 1 || pages > 100) {
		return fmt.Errorf("页数必须在1-100之间,当前值: %d", pages)
	}
	if workers != 0 && (workers < 1 || workers > 50) {
		return fmt.Errorf("并发数必须在1-50之间,当前值: %d", workers)
	}
	if batchSize != 0 && (batchSize < 1 || batchSize > 20) {
		return fmt.Errorf("批大小必须在1-20之间,当前值: %d", batchSize)
	}
	if taskTimeout < 0 || runTimeout < 0 {
		return fmt.Errorf("超时时间不能为负数")
	}

	if mode != "" {
		validModes := map[string]bool{
			string(models.ModeBrowser): true,
			string(models.ModeStatic):  true,
		}
		if !validModes[mode] {
			return fmt.Errorf("无效的模式: %s (有效值: browser, static)", mode)
		}
	}
	return nil
}
