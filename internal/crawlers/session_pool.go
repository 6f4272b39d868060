package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/ysmood/gson"
)

// initScript 在页面任何脚本之前执行,隐藏自动化特征
const initScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => false });
	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	const count = 3 + Math.floor(Math.random() * 5);
	Object.defineProperty(navigator, 'plugins', {
		get: () => Array.from({ length: count }, (_, i) => ({ name: 'Plugin ' + i, filename: 'plugin' + i + '.dll' })),
	});
	for (const key of Object.keys(window)) {
		if (key.startsWith('cdc_')) { delete window[key]; }
	}
	const toDataURL = HTMLCanvasElement.prototype.toDataURL;
	HTMLCanvasElement.prototype.toDataURL = function (...args) {
		const ctx = this.getContext('2d');
		if (ctx && this.width > 0 && this.height > 0) {
			const pixel = ctx.getImageData(0, 0, 1, 1);
			pixel.data[0] = (pixel.data[0] + Math.floor(Math.random() * 3)) %% 256;
			ctx.putImageData(pixel, 0, 0);
		}
		return toDataURL.apply(this, args);
	};
})();`

// SessionPool 基于浏览器隐身上下文的会话池
// 每个会话一个独立的浏览器上下文,代理按上下文设置
type SessionPool struct {
	browser *rod.Browser
	headers models.HeaderProvider

	mu    sync.Mutex
	open  map[string]*browserSession
	stats SessionStats
}

// NewSessionPool 创建会话池,headers为nil时只使用指纹派生的头部
func NewSessionPool(browser *rod.Browser, headers models.HeaderProvider) *SessionPool {
	return &SessionPool{
		browser: browser,
		headers: headers,
		open:    make(map[string]*browserSession),
	}
}

// AcquireSession 创建隔离的浏览器上下文
func (sp *SessionPool) AcquireSession(ctx context.Context, profile models.FingerprintProfile) (Session, error) {
	proxy, err := chromeProxy(profile.ProxyAddress)
	if err != nil {
		return nil, err
	}

	res, err := proto.TargetCreateBrowserContext{ProxyServer: proxy}.Call(sp.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("创建浏览器上下文失败: %w", err)
	}
	incognito := *sp.browser
	incognito.BrowserContextID = res.BrowserContextID

	var extra http.Header
	if sp.headers != nil {
		if extra, err = sp.headers.HeadersFor(profile); err != nil {
			_ = incognito.Close()
			return nil, err
		}
	}

	session := &browserSession{
		id:      uuid.NewString(),
		browser: &incognito,
		profile: profile,
		headers: extra,
	}

	sp.mu.Lock()
	sp.open[session.id] = session
	sp.stats.Opened++
	sp.stats.Open = len(sp.open)
	if sp.stats.Open > sp.stats.Peak {
		sp.stats.Peak = sp.stats.Open
	}
	sp.mu.Unlock()

	utils.Logger.Debug().
		Str("session", session.id).
		Str("proxy", utils.RedactProxy(profile.ProxyAddress)).
		Str("locale", profile.Locale).
		Int("width", profile.Viewport.Width).
		Msg("会话已创建")
	return session, nil
}

// ReleaseSession 关闭会话的所有页面和浏览器上下文
func (sp *SessionPool) ReleaseSession(s Session) error {
	session, ok := s.(*browserSession)
	if !ok {
		return fmt.Errorf("会话类型错误: %T", s)
	}

	sp.mu.Lock()
	if _, exists := sp.open[session.id]; !exists {
		sp.mu.Unlock()
		return nil
	}
	delete(sp.open, session.id)
	sp.stats.Open = len(sp.open)
	sp.mu.Unlock()

	return session.close()
}

// Stats 会话数量统计
func (sp *SessionPool) Stats() SessionStats {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.stats
}

// Close 释放所有仍然打开的会话
func (sp *SessionPool) Close() {
	sp.mu.Lock()
	sessions := make([]*browserSession, 0, len(sp.open))
	for _, s := range sp.open {
		sessions = append(sessions, s)
	}
	sp.mu.Unlock()

	for _, s := range sessions {
		if err := sp.ReleaseSession(s); err != nil {
			utils.Warnf("关闭会话失败 [%s]: %v", s.id, err)
		}
	}
}

// chromeProxy Chrome的 --proxy-server 不接受账号密码,去掉后记录警告
func chromeProxy(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("无效的代理地址: %s", utils.RedactProxy(raw))
	}
	if parsed.User != nil {
		utils.Warnf("浏览器代理不支持账号密码,已忽略: %s", utils.RedactProxy(raw))
		parsed.User = nil
	}
	return parsed.String(), nil
}

type browserSession struct {
	id      string
	browser *rod.Browser
	profile models.FingerprintProfile
	headers http.Header

	mu     sync.Mutex
	pages  []*rod.Page
	closed bool
}

func (s *browserSession) ID() string                         { return s.id }
func (s *browserSession) Profile() models.FingerprintProfile { return s.profile }

// NewPage 创建页面并在加载任何内容之前应用指纹
func (s *browserSession) NewPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("会话已释放: %s", s.id)
	}
	s.mu.Unlock()

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	if err := s.applyProfile(page.Context(ctx)); err != nil {
		return nil, fmt.Errorf("应用指纹失败: %w", err)
	}
	return &rodPage{page: page}, nil
}

func (s *browserSession) applyProfile(page *rod.Page) error {
	p := s.profile

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return err
	}
	languages := fmt.Sprintf("['%s', 'en']", p.Locale)
	if _, err := page.EvalOnNewDocument(fmt.Sprintf(initScript, languages)); err != nil {
		return err
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             p.Viewport.Width,
		Height:            p.Viewport.Height,
		DeviceScaleFactor: p.DeviceScaleFactor,
	}); err != nil {
		return err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      p.UserAgent,
		AcceptLanguage: p.AcceptLanguage(),
	}); err != nil {
		return err
	}
	if p.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: p.Locale}).Call(page); err != nil {
			return err
		}
	}
	if p.TimezoneID != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: p.TimezoneID}).Call(page); err != nil {
			return err
		}
	}
	if p.ColorScheme != "" && p.ColorScheme != models.ColorSchemeNoPreference {
		err := proto.EmulationSetEmulatedMedia{
			Features: []*proto.EmulationMediaFeature{{Name: "prefers-color-scheme", Value: string(p.ColorScheme)}},
		}.Call(page)
		if err != nil {
			return err
		}
	}
	if p.TouchCapable {
		err := proto.EmulationSetTouchEmulationEnabled{Enabled: true, MaxTouchPoints: gson.Int(5)}.Call(page)
		if err != nil {
			return err
		}
	}

	return s.applyHeaders(page)
}

// applyHeaders 每个会话一份请求头,User-Agent 和 Accept-Language 已由指纹设置
func (s *browserSession) applyHeaders(page *rod.Page) error {
	headers := proto.NetworkHeaders{}
	for name, values := range s.headers {
		switch strings.ToLower(name) {
		case "user-agent", "accept-language", "accept-encoding":
			continue
		}
		if len(values) > 0 {
			headers[name] = gson.New(values[0])
		}
	}
	if len(headers) == 0 {
		return nil
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return err
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(page)
}

func (s *browserSession) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	for _, page := range pages {
		_ = page.Close()
	}
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("关闭浏览器上下文失败: %w", err)
	}
	utils.Logger.Debug().Str("session", s.id).Msg("会话已释放")
	return nil
}
