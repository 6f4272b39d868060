package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/furqank73/Web-Scraping/internal/extract"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/spf13/viper"
)

//go:embed sites/yellowpages.yaml
var defaultSiteProfile []byte

// DiscoveryProfile 列表页配置
type DiscoveryProfile struct {
	ResultsContainer []string      `mapstructure:"results_container"`
	ListingSelectors []string      `mapstructure:"listing_selectors"`
	PathFilters      []string      `mapstructure:"path_filters"`
	ContainerTimeout time.Duration `mapstructure:"container_timeout"`
}

// NavigationProfile 拦截特征和导航前后的辅助操作
type NavigationProfile struct {
	BlockSelectors         []string `mapstructure:"block_selectors"`
	BlockPhrases           []string `mapstructure:"block_phrases"`
	BlockTitleKeywords     []string `mapstructure:"block_title_keywords"`
	DetourURLs             []string `mapstructure:"detour_urls"`
	CookieConsentSelectors []string `mapstructure:"cookie_consent_selectors"`
}

// DetailProfile 详情页配置
type DetailProfile struct {
	WaitSelectors []string      `mapstructure:"wait_selectors"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
}

// SiteProfile 一个站点的全部可插拔配置
type SiteProfile struct {
	Name       string            `mapstructure:"name"`
	SearchURL  string            `mapstructure:"search_url"`
	PageParam  string            `mapstructure:"page_param"`
	Discovery  DiscoveryProfile  `mapstructure:"discovery"`
	Navigation NavigationProfile `mapstructure:"navigation"`
	Detail     DetailProfile     `mapstructure:"detail"`
	Extraction extract.Options   `mapstructure:"extraction"`
}

// LoadSiteProfile 加载站点配置,path为空时使用内置的默认配置
func LoadSiteProfile(path string) (*SiteProfile, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		if err := v.ReadConfig(bytes.NewReader(defaultSiteProfile)); err != nil {
			return nil, fmt.Errorf("内置站点配置无效: %w", err)
		}
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &models.ConfigError{FilePath: path, Cause: err}
		}
		if info.Size() > MaxConfigFileSize {
			return nil, &models.ConfigError{
				FilePath: path,
				Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
			}
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &models.ConfigError{FilePath: path, Cause: err}
		}
	}

	var profile SiteProfile
	if err := v.Unmarshal(&profile); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}
	if err := profile.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	return &profile, nil
}

// Validate 检查必填项并编译全部选择器
func (p *SiteProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("站点名称不能为空")
	}
	if len(p.Discovery.ListingSelectors) == 0 {
		return fmt.Errorf("listing_selectors 不能为空")
	}
	if p.PageParam == "" {
		p.PageParam = "page"
	}
	if p.Extraction.Source == "" {
		p.Extraction.Source = p.Name
	}

	groups := map[string][]string{
		"results_container":        p.Discovery.ResultsContainer,
		"listing_selectors":        p.Discovery.ListingSelectors,
		"block_selectors":          p.Navigation.BlockSelectors,
		"cookie_consent_selectors": p.Navigation.CookieConsentSelectors,
		"wait_selectors":           p.Detail.WaitSelectors,
	}
	for group, selectors := range groups {
		for _, sel := range selectors {
			if _, err := cascadia.Compile(sel); err != nil {
				return fmt.Errorf("%s 中的选择器无效 %q: %w", group, sel, err)
			}
		}
	}

	if _, err := extract.NewPipeline(p.Extraction); err != nil {
		return err
	}
	return nil
}

// BuildSearchURL 用搜索词和地点填充搜索URL模板
func (p *SiteProfile) BuildSearchURL(search, location string) (string, error) {
	if p.SearchURL == "" {
		return "", fmt.Errorf("站点 %s 没有配置 search_url", p.Name)
	}
	replacer := strings.NewReplacer(
		"{search}", url.PathEscape(slugify(search)),
		"{location}", url.PathEscape(slugify(location)),
	)
	return replacer.Replace(p.SearchURL), nil
}

// PageURL 第1页使用基础URL,其它页附加分页参数
func (p *SiteProfile) PageURL(base string, page int) (string, error) {
	if page <= 1 {
		return base, nil
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("无效的URL %q: %w", base, err)
	}
	query := parsed.Query()
	query.Set(p.PageParam, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// DetourURL 为绕行访问生成URL,查询词来自搜索词和地点
func DetourURL(template, search, location string) string {
	query := url.QueryEscape(strings.TrimSpace(search + " " + location))
	return strings.ReplaceAll(template, "{query}", query)
}

// slugify "New York, NY" → "new-york-ny"
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
