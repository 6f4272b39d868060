package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// MaxHeaderValueLength 头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

// ForbiddenHeaders 不允许自定义的头部
// 前四个由HTTP客户端管理, Cookie 属于每个会话自己的cookie jar
var ForbiddenHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Cookie",
}

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderValidator 校验配置文件和命令行中的自定义头部 (RFC 7230)
type HeaderValidator struct {
	maxValueLength int
	forbidden      map[string]bool
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	forbidden := make(map[string]bool, len(ForbiddenHeaders))
	for _, h := range ForbiddenHeaders {
		forbidden[strings.ToLower(h)] = true
	}
	return &HeaderValidator{maxValueLength: MaxHeaderValueLength, forbidden: forbidden}
}

func invalidHeader(field, name, reason, suggestion string) error {
	return &models.ValidationError{Field: field, HeaderName: name, Reason: reason, Suggestion: suggestion}
}

// ValidateName 头部名称只允许字母、数字和连字符
func (hv *HeaderValidator) ValidateName(name string) error {
	switch {
	case name == "":
		return invalidHeader("name", name, "头部名称不能为空", "")
	case !headerNamePattern.MatchString(name):
		return invalidHeader("name", name, "头部名称包含非法字符 (仅允许字母、数字和连字符)",
			"使用字母、数字和连字符 (如 'Referer', 'X-Custom-Header')")
	}
	return nil
}

// ValidateValue 头部值只允许可打印ASCII,且不超过长度上限
func (hv *HeaderValidator) ValidateValue(name, value string) error {
	if len(value) > hv.maxValueLength {
		return invalidHeader("value", name,
			fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), hv.maxValueLength),
			fmt.Sprintf("将值缩短至 %d 字节以内", hv.maxValueLength))
	}
	if !headerValuePattern.MatchString(value) {
		return invalidHeader("value", name, "头部值包含非法字符 (仅允许可打印ASCII字符)", "移除控制字符和非ASCII字符")
	}
	return nil
}

// ValidateHeader 依次检查禁止列表、名称和值
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	if hv.IsForbidden(name) {
		reason := "此头部由HTTP客户端自动管理,不允许自定义"
		if strings.EqualFold(name, "Cookie") {
			reason = "Cookie 由每个会话独立维护,不能在全局配置"
		}
		return invalidHeader("name", name, reason, fmt.Sprintf("移除 '%s' 头部配置", name))
	}
	if err := hv.ValidateName(name); err != nil {
		return err
	}
	return hv.ValidateValue(name, value)
}

// IsForbidden 不区分大小写
func (hv *HeaderValidator) IsForbidden(name string) bool {
	return hv.forbidden[strings.ToLower(name)]
}

// Validate 返回第一个非法头部的错误
func (hv *HeaderValidator) Validate(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := hv.ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateProxy 代理地址必须是 scheme://[user:pass@]host:port
// 浏览器和静态会话都支持 http, https, socks5
func ValidateProxy(proxy string) error {
	parsed, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("无效的代理地址: %s", RedactProxy(proxy))
	}
	switch parsed.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("不支持的代理协议 %q: %s", parsed.Scheme, RedactProxy(proxy))
	}
	if _, port, err := net.SplitHostPort(parsed.Host); err != nil || port == "" || parsed.Hostname() == "" {
		return fmt.Errorf("代理地址缺少主机或端口: %s", RedactProxy(proxy))
	}
	return nil
}
