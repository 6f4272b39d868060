package core

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// HeaderManager 按会话指纹生成请求头部
// 实现 models.HeaderProvider
type HeaderManager struct {
	// config 从配置文件加载的头部
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	validator  *utils.HeaderValidator
	redactor   *utils.HeaderRedactor
	headerFile *config.HeaderFile

	mu     sync.Mutex
	loaded bool
}

// NewHeaderManager 创建头部管理器
// configFile 为空时使用默认路径, cliHeaders 格式为 "Name: Value"
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		validator:  utils.NewHeaderValidator(),
		redactor:   utils.NewHeaderRedactor(),
		headerFile: config.NewHeaderFile(configFile),
		cli:        make(http.Header),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

var chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)

// ProfileHeaders 从指纹派生的头部
// Chromium内核的UA带上对应的 sec-ch-ua 客户端提示
func ProfileHeaders(profile models.FingerprintProfile) http.Header {
	h := http.Header{}
	h.Set("User-Agent", profile.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", profile.AcceptLanguage())
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Upgrade-Insecure-Requests", "1")

	m := chromeVersion.FindStringSubmatch(profile.UserAgent)
	if m == nil || strings.Contains(profile.UserAgent, "Firefox/") {
		return h
	}
	brand := "Google Chrome"
	if strings.Contains(profile.UserAgent, "Edg/") {
		brand = "Microsoft Edge"
	}
	h.Set("Sec-Ch-Ua", fmt.Sprintf(`"Chromium";v="%s", "%s";v="%s", "Not-A.Brand";v="99"`, m[1], brand, m[1]))
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", fmt.Sprintf("%q", platformOf(profile.UserAgent)))
	return h
}

func platformOf(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Macintosh"):
		return "macOS"
	default:
		return "Linux"
	}
}

// LoadConfig 加载配置文件,已加载时跳过
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hm.loaded {
		return nil
	}

	headers, err := hm.headerFile.Load()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(headers); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}

	hm.config = headers
	hm.loaded = true
	if len(headers) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %v", len(headers), hm.redactor.Redact(headers))
	}
	return nil
}

// HeadersFor 实现 models.HeaderProvider
// 优先级: 指纹派生 < 配置文件 < 命令行
func (hm *HeaderManager) HeadersFor(profile models.FingerprintProfile) (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}

	result := ProfileHeaders(profile)
	for name, values := range hm.config {
		result[name] = append([]string(nil), values...)
	}
	for name, values := range hm.cli {
		result[name] = append([]string(nil), values...)
	}
	return result, nil
}

// GetSafeHeaders 返回脱敏后的自定义头部,用于日志
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	merged := make(http.Header)
	for name, values := range hm.config {
		merged[name] = values
	}
	for name, values := range hm.cli {
		merged[name] = values
	}
	return hm.redactor.Redact(merged)
}
