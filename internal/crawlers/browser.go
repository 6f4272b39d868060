package crawlers

import (
	"fmt"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// BrowserConfig 浏览器启动参数
type BrowserConfig struct {
	Headless         bool   `mapstructure:"headless"`
	Bin              string `mapstructure:"bin"`                // 浏览器路径,为空时自动查找或下载
	NoSandbox        bool   `mapstructure:"no_sandbox"`         // 容器内运行时需要
	IgnoreCertErrors bool   `mapstructure:"ignore_cert_errors"` // 内网/自签名证书
}

// Browser 已启动的浏览器进程
type Browser struct {
	*rod.Browser
	launcher *launcher.Launcher
}

// LaunchBrowser 启动浏览器并连接,失败时返回 models.ErrBrowserLaunch
func LaunchBrowser(cfg BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Delete(flags.Flag("enable-automation"))

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if cfg.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors")
		utils.Warnf("浏览器已配置为跳过HTTPS证书验证")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBrowserLaunch, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: 连接浏览器失败: %v", models.ErrBrowserLaunch, err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return &Browser{Browser: browser, launcher: l}, nil
}

// Close 关闭浏览器并清理用户数据目录
func (b *Browser) Close() error {
	err := b.Browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}
