package core

import (
	"context"
	"fmt"
	"time"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// BatchHarvester 按顺序执行多条 "搜索词|地点" 查询
type BatchHarvester struct {
	config        Config
	site          *config.SiteProfile
	headers       models.HeaderProvider
	batchDelay    time.Duration
	continueOnErr bool

	// run 执行单条查询,测试中可替换
	run func(ctx context.Context, cfg *Config) (*models.HarvestReport, error)
}

// BatchResult 单条查询的结果
type BatchResult struct {
	Query       models.BatchQuery
	Success     bool
	Error       error
	Stats       models.HarvestStats
	OutputFiles []string
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量采集摘要
type BatchSummary struct {
	TotalQueries  int
	SuccessCount  int
	FailCount     int
	TotalRecords  int
	TotalDuration float64
	Results       []BatchResult
}

// LoadBatchQueries 读取查询文件,跳过空行和注释,格式错误的行返回错误
func LoadBatchQueries(path string) ([]models.BatchQuery, error) {
	lines, err := utils.ReadLinesFromFile(path)
	if err != nil {
		return nil, err
	}

	queries := make([]models.BatchQuery, 0, len(lines))
	for i, line := range lines {
		q, err := models.ParseBatchQuery(line)
		if err != nil {
			return nil, fmt.Errorf("第%d条查询: %w", i+1, err)
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("查询文件为空: %s", path)
	}
	return queries, nil
}

// NewBatchHarvester 创建批量采集器,cfg 作为每条查询的基础配置
func NewBatchHarvester(cfg *Config, site *config.SiteProfile, headers models.HeaderProvider, batchDelay int, continueOnErr bool) *BatchHarvester {
	bh := &BatchHarvester{
		config:        *cfg,
		site:          site,
		headers:       headers,
		batchDelay:    time.Duration(batchDelay) * time.Second,
		continueOnErr: continueOnErr,
	}
	bh.run = bh.harvest
	return bh
}

// HarvestBatch 逐条执行查询
func (bh *BatchHarvester) HarvestBatch(ctx context.Context, queries []models.BatchQuery) *BatchSummary {
	utils.Infof("🚀 开始批量采集: %d条查询", len(queries))

	summary := &BatchSummary{
		TotalQueries: len(queries),
		Results:      make([]BatchResult, 0, len(queries)),
	}
	startTime := time.Now()

	for i, q := range queries {
		if ctx.Err() != nil {
			utils.Warn("批量采集被取消")
			break
		}
		utils.Infof("==================== [%d/%d] %s | %s ====================", i+1, len(queries), q.SearchTerm, q.Location)

		result := bh.harvestQuery(ctx, q)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalRecords += result.Stats.Records
		} else {
			summary.FailCount++
			utils.Errorf("❌ 查询失败: %v", result.Error)
			if !bh.continueOnErr {
				utils.Warn("批量采集中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(queries)-1 && bh.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一条查询...", bh.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(bh.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bh.printSummary(summary)
	return summary
}

func (bh *BatchHarvester) harvestQuery(ctx context.Context, q models.BatchQuery) BatchResult {
	result := BatchResult{Query: q, ProcessedAt: time.Now()}
	startTime := time.Now()

	cfg := bh.config
	cfg.Harvest.SearchTerm = q.SearchTerm
	cfg.Harvest.Location = q.Location
	cfg.Harvest.SeedURL = ""

	report, err := bh.run(ctx, &cfg)
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	result.Stats = report.Stats
	result.OutputFiles = report.OutputFiles
	return result
}

func (bh *BatchHarvester) harvest(ctx context.Context, cfg *Config) (*models.HarvestReport, error) {
	h, err := NewHarvester(cfg, bh.site, bh.headers)
	if err != nil {
		return nil, fmt.Errorf("创建采集器失败: %w", err)
	}
	report, err := h.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("采集失败: %w", err)
	}
	return report, nil
}

func (bh *BatchHarvester) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量采集摘要")
	utils.Info("==================================================")
	utils.Infof("总查询数: %d", summary.TotalQueries)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 总记录数: %d", summary.TotalRecords)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的查询:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s | %s: %v", result.Query.SearchTerm, result.Query.Location, result.Error)
			}
		}
	}
}
