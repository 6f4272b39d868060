package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig 头部配置文件的结构,键为头部名称
type HeaderConfig struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 命令行 -H 参数,每项为 "Name: Value"
type CliHeaders []string

// Parse 同名头部以后出现的为准
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		switch {
		case !ok:
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 缺少冒号,应为 'Name: Value'", i+1)
		case name == "":
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 头部名称不能为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// HeaderProvider 按会话指纹生成请求头部,不在进程内共享一份全局头部
// 合并顺序: 指纹派生 < 头部配置文件 < 命令行
type HeaderProvider interface {
	HeadersFor(profile FingerprintProfile) (http.Header, error)
}

// ValidationError 单个头部未通过校验
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (建议: %s)", e.Suggestion)
	}
	return b.String()
}

// ConfigError 配置文件无法读取、解析或绑定
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsConfigError 判断错误链中是否有配置文件错误
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
