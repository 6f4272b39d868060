package models

import (
	"fmt"
	"net/url"
	"strings"
)

// TargetDescriptor 发现阶段产出的详情页目标
// 创建后不可修改,同一次运行内按规范化URL唯一
type TargetDescriptor struct {
	URL             string `json:"url"`         // 规范化后的详情页URL
	DiscoveredTitle string `json:"title"`       // 列表页上的标题
	SourcePageIndex int    `json:"source_page"` // 来源列表页页码 (从1开始)
}

// NewTargetDescriptor 规范化URL和标题后创建目标
func NewTargetDescriptor(rawURL, title string, pageIndex int, base *url.URL) (TargetDescriptor, error) {
	normalized, err := NormalizeTargetURL(rawURL, base)
	if err != nil {
		return TargetDescriptor{}, err
	}

	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = UntitledTarget
	}

	return TargetDescriptor{
		URL:             normalized,
		DiscoveredTitle: title,
		SourcePageIndex: pageIndex,
	}, nil
}

// UntitledTarget 列表页上没有标题时的占位标题
const UntitledTarget = "Untitled"

// HasTitle 判断目标是否带有真实标题
func (t TargetDescriptor) HasTitle() bool {
	return t.DiscoveredTitle != "" && t.DiscoveredTitle != UntitledTarget
}

// NormalizeTargetURL 规范化目标URL
//   - 相对路径按base解析
//   - scheme和host转小写
//   - 去掉fragment
//   - 非根路径去掉末尾的斜杠
func NormalizeTargetURL(rawURL string, base *url.URL) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("URL为空")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("无效的URL %q: %w", rawURL, err)
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL必须是HTTP或HTTPS协议: %s", rawURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL必须包含主机名: %s", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		parsed.RawPath = ""
	}

	return parsed.String(), nil
}
