package models

import "time"

// HarvestReport 采集报告
type HarvestReport struct {
	// 任务信息
	TaskID   string      `json:"task_id"`
	Site     string      `json:"site"`
	StartURL string      `json:"start_url"`
	Domain   string      `json:"domain"`
	Mode     HarvestMode `json:"mode"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats HarvestStats `json:"stats"`

	// 失败目标
	FailedTargets []FailedTarget `json:"failed_targets"`

	// 输出路径
	OutputDir   string   `json:"output_dir"`
	OutputFiles []string `json:"output_files"`

	// 配置快照
	Config HarvestConfig `json:"config"`
}

// FailedTarget 失败目标信息
type FailedTarget struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	ErrorType string `json:"error_type"` // blocked, timeout, incomplete, error
	ErrorMsg  string `json:"error_msg"`
}
