package models

import (
	"context"
	"errors"
	"fmt"
)

// 采集过程中的错误类型
var (
	// ErrNavigationTimeout 页面在限定时间内未进入就绪状态
	ErrNavigationTimeout = errors.New("导航超时")

	// ErrBlockDetected 页面命中反爬拦截特征
	ErrBlockDetected = errors.New("检测到反爬拦截")

	// ErrSelectorNotFound 选择器回退链中没有任何选择器命中
	ErrSelectorNotFound = errors.New("选择器未匹配到任何元素")

	// ErrMalformedStructuredData 页面内嵌的结构化数据无法解析
	ErrMalformedStructuredData = errors.New("结构化数据格式错误")

	// ErrExtractionIncomplete 所有策略都未能提取到名称
	ErrExtractionIncomplete = errors.New("未能提取到名称")

	// ErrBrowserLaunch 浏览器无法启动,整次运行失败
	ErrBrowserLaunch = errors.New("浏览器启动失败")

	// ErrAggregatorDrained 结果已被取出,不再接受新记录
	ErrAggregatorDrained = errors.New("结果集已被取出")
)

// BlockEvent 一次拦截检测的结果,只用于决定重试,不写入输出
type BlockEvent struct {
	Indicator     string // 命中的选择器或关键词
	TitleSnapshot string // 命中时的页面标题
	Attempt       int    // 第几次尝试 (从1开始)
}

// BlockedError 多次重试后仍被拦截
type BlockedError struct {
	URL      string
	Attempts int
	Last     BlockEvent
}

// Error 实现error接口
func (e *BlockedError) Error() string {
	return fmt.Sprintf("站点在%d次尝试后仍拦截访问 [%s]: 命中 %q (标题: %q)",
		e.Attempts, e.URL, e.Last.Indicator, e.Last.TitleSnapshot)
}

// Unwrap 支持 errors.Is(err, ErrBlockDetected)
func (e *BlockedError) Unwrap() error {
	return ErrBlockDetected
}

// 失败记录的错误分类,写入 error_kind 字段和运行报告
const (
	ErrorKindBlocked    = "blocked"
	ErrorKindTimeout    = "timeout"
	ErrorKindIncomplete = "incomplete"
	ErrorKindError      = "error"
)

// ClassifyError 按错误链归类失败原因
func ClassifyError(err error) string {
	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked), errors.Is(err, ErrBlockDetected):
		return ErrorKindBlocked
	case errors.Is(err, ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrExtractionIncomplete):
		return ErrorKindIncomplete
	default:
		return ErrorKindError
	}
}
