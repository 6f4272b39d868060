package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/core"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <查询文件>",
	Short: "批量执行 '搜索词|地点' 查询",
	Long: `按顺序执行查询文件中的每一行,每行格式为 '搜索词|地点',# 开头的行为注释

示例:
  harvester batch queries.txt --batch-delay 30 -m static`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		appConfig.MergeCLIFlags(overridesFrom(cmd))
		if err := ValidateFlags("", pages, workers, batchSize, mode, taskTimeout, runTimeout); err != nil {
			return err
		}

		headerManager, err := core.NewHeaderManager(appConfig.Site.HeaderFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		site, err := config.LoadSiteProfile(appConfig.Site.Profile)
		if err != nil {
			return fmt.Errorf("加载站点配置失败: %w", err)
		}
		return runBatch(ctx, args[0], site, headerManager)
	},
}

// runBatch 读取查询文件并逐条采集,全部失败时返回错误
func runBatch(ctx context.Context, path string, site *config.SiteProfile, headerManager *core.HeaderManager) error {
	queries, err := core.LoadBatchQueries(path)
	if err != nil {
		return fmt.Errorf("读取查询文件失败: %w", err)
	}

	// 搜索词和地点来自文件,先用第一条通过其它字段的验证
	appConfig.Harvest.SearchTerm, appConfig.Harvest.Location = queries[0].SearchTerm, queries[0].Location
	appConfig.Harvest.SeedURL = ""
	if err := appConfig.Validate(); err != nil {
		return err
	}

	batch := core.NewBatchHarvester(appConfig, site, headerManager, batchDelay, continueOnError)
	summary := batch.HarvestBatch(ctx, queries)
	if summary.SuccessCount == 0 && summary.TotalQueries > 0 {
		return fmt.Errorf("所有查询都失败了")
	}
	utils.Info("✨ 批量采集任务完成!")
	return nil
}
