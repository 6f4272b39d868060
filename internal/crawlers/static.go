package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	stdtls "crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html/charset"
)

// ErrScreenshotUnsupported 静态页面没有截图
var ErrScreenshotUnsupported = errors.New("静态页面不支持截图")

// StaticConfig 静态HTTP会话配置
type StaticConfig struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	ChromeTLS          bool          `mapstructure:"chrome_tls"` // 使用Chrome的TLS指纹
}

// StaticSessionProvider 用HTTP客户端代替浏览器的会话
// 每个会话一个collector: 独立的cookie jar和请求头部
type StaticSessionProvider struct {
	config  StaticConfig
	headers models.HeaderProvider

	mu    sync.Mutex
	open  map[string]bool
	stats SessionStats
}

// NewStaticSessionProvider 创建静态会话提供者
func NewStaticSessionProvider(config StaticConfig, headers models.HeaderProvider) *StaticSessionProvider {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &StaticSessionProvider{
		config:  config,
		headers: headers,
		open:    make(map[string]bool),
	}
}

// AcquireSession 创建带独立cookie jar的collector
func (sp *StaticSessionProvider) AcquireSession(_ context.Context, profile models.FingerprintProfile) (Session, error) {
	headers := http.Header{}
	if sp.headers != nil {
		h, err := sp.headers.HeadersFor(profile)
		if err != nil {
			return nil, err
		}
		headers = h
	}

	transport, err := newTransport(sp.config, profile.ProxyAddress)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(profile.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(transport)
	c.SetCookieJar(jar)
	c.SetRequestTimeout(sp.config.RequestTimeout)
	// 拦截页通常是4xx,也需要交给拦截检测
	c.ParseHTTPErrorResponse = true

	session := &staticSession{
		id:        uuid.NewString(),
		profile:   profile,
		collector: c,
	}
	c.OnRequest(func(r *colly.Request) {
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})
	c.OnResponse(session.onResponse)

	sp.mu.Lock()
	sp.open[session.id] = true
	sp.stats.Opened++
	sp.stats.Open = len(sp.open)
	if sp.stats.Open > sp.stats.Peak {
		sp.stats.Peak = sp.stats.Open
	}
	sp.mu.Unlock()
	return session, nil
}

// ReleaseSession 释放会话,关闭空闲连接
func (sp *StaticSessionProvider) ReleaseSession(s Session) error {
	session, ok := s.(*staticSession)
	if !ok {
		return fmt.Errorf("会话类型错误: %T", s)
	}

	sp.mu.Lock()
	if !sp.open[session.id] {
		sp.mu.Unlock()
		return nil
	}
	delete(sp.open, session.id)
	sp.stats.Open = len(sp.open)
	sp.mu.Unlock()

	session.mu.Lock()
	session.closed = true
	session.mu.Unlock()
	return nil
}

// Stats 会话数量统计
func (sp *StaticSessionProvider) Stats() SessionStats {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.stats
}

type staticSession struct {
	id        string
	profile   models.FingerprintProfile
	collector *colly.Collector

	mu       sync.Mutex
	closed   bool
	lastBody string
	lastCode int
	lastErr  error
}

func (s *staticSession) ID() string                         { return s.id }
func (s *staticSession) Profile() models.FingerprintProfile { return s.profile }

func (s *staticSession) NewPage(_ context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("会话已释放: %s", s.id)
	}
	return &staticPage{session: s}, nil
}

func (s *staticSession) onResponse(r *colly.Response) {
	body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
	if err != nil {
		utils.Warnf("解压响应失败 [%s]: %v", r.Request.URL, err)
		body = r.Body
	}
	contentType := r.Headers.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "charset") {
		// 声明了字符集的响应colly已经转换过
		contentType = "text/html; charset=utf-8"
	}
	decoded, err := toUTF8(body, contentType)
	if err != nil {
		utils.Warnf("字符集转换失败 [%s]: %v", r.Request.URL, err)
		decoded = string(body)
	}

	s.mu.Lock()
	s.lastBody = decoded
	s.lastCode = r.StatusCode
	s.lastErr = nil
	s.mu.Unlock()
}

// fetch 同步请求URL,同一会话内的请求顺序执行
func (s *staticSession) fetch(ctx context.Context, target string) (string, int, error) {
	s.mu.Lock()
	s.lastBody, s.lastCode, s.lastErr = "", 0, nil
	s.mu.Unlock()

	s.collector.Context = ctx
	if err := s.collector.Visit(target); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w: %s", models.ErrNavigationTimeout, target)
		}
		return "", 0, fmt.Errorf("请求失败 [%s]: %w", target, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody, s.lastCode, s.lastErr
}

// staticPage 一次HTTP响应的快照
type staticPage struct {
	session *staticSession
	url     string
	html    string
	status  int
	doc     *goquery.Document
}

func (p *staticPage) Navigate(ctx context.Context, target string) error {
	body, status, err := p.session.fetch(ctx, target)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("解析HTML失败 [%s]: %w", target, err)
	}
	p.url, p.html, p.status, p.doc = target, body, status, doc
	return nil
}

func (p *staticPage) Title(context.Context) (string, error) {
	if p.doc == nil {
		return "", nil
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *staticPage) HTML(context.Context) (string, error) {
	return p.html, nil
}

// WaitAttached 静态页面没有后续渲染,直接检查选择器
func (p *staticPage) WaitAttached(_ context.Context, selector string, _ time.Duration) error {
	if p.doc != nil && p.doc.Find(selector).Length() > 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrSelectorNotFound, selector)
}

func (p *staticPage) Click(context.Context, string, time.Duration) error     { return nil }
func (p *staticPage) MoveMouse(context.Context, float64, float64, int) error { return nil }
func (p *staticPage) Scroll(context.Context, float64, int) error             { return nil }
func (p *staticPage) Screenshot(context.Context) ([]byte, error) {
	return nil, ErrScreenshotUnsupported
}
func (p *staticPage) Close() error { return nil }

// newTransport HTTP传输层,可选Chrome TLS指纹
func newTransport(cfg StaticConfig, proxy string) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("无效的代理地址: %s", utils.RedactProxy(proxy))
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if cfg.ChromeTLS {
		transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, cfg.InsecureSkipVerify)
		}
	} else if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &stdtls.Config{InsecureSkipVerify: true}
	}
	return transport, nil
}

// dialChromeTLS Chrome的ClientHello,ALPN只保留http/1.1
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, insecure bool) (net.Conn, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, fmt.Errorf("生成TLS指纹失败: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host, InsecureSkipVerify: insecure}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("应用TLS指纹失败: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// decompressResponse 按Content-Encoding解压响应体
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		// colly已经解压过gzip时这里会失败,按原样返回
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body, nil
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s解压失败: %w", contentEncoding, err)
	}
	return decompressed, nil
}

// toUTF8 按Content-Type和meta标签识别字符集并转换为UTF-8
// 都没有声明时按内容猜测
func toUTF8(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
