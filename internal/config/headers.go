package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultHeaderFile 默认头部配置文件
	DefaultHeaderFile = "configs/headers.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed headers_template.yaml
var headerTemplate []byte

// HeaderFile 头部配置文件
type HeaderFile struct {
	path string
}

// NewHeaderFile 创建头部配置文件,path为空时使用默认路径
func NewHeaderFile(path string) *HeaderFile {
	if path == "" {
		path = DefaultHeaderFile
	}
	return &HeaderFile{path: path}
}

// ensureTemplate 文件不存在时写入带注释的模板
func (f *HeaderFile) ensureTemplate() error {
	if _, err := os.Stat(f.path); !os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", filepath.Dir(f.path), err)
	}
	if err := os.WriteFile(f.path, headerTemplate, 0644); err != nil {
		return fmt.Errorf("无法生成头部配置模板 [%s]: %w", f.path, err)
	}
	utils.Infof("已生成头部配置模板: %s", f.path)
	return nil
}

// Load 读取配置文件中的头部
// 文件被其它进程锁定时返回空头部
func (f *HeaderFile) Load() (http.Header, error) {
	if err := f.ensureTemplate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, &models.ConfigError{FilePath: f.path, Cause: err}
	}
	if info.Size() > MaxConfigFileSize {
		return nil, &models.ConfigError{
			FilePath: f.path,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("头部配置文件被锁定 [%s], 忽略自定义头部", f.path)
			return make(http.Header), nil
		}
		return nil, &models.ConfigError{FilePath: f.path, Cause: err}
	}

	var cfg models.HeaderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: f.path, Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}

	headers := make(http.Header, len(cfg.Headers))
	for name, value := range cfg.Headers {
		headers.Set(name, value)
	}
	return headers, nil
}
