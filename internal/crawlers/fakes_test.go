package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// fakeResponse 某个URL的一次加载结果
type fakeResponse struct {
	title string
	html  string
	err   error
}

// fakeSite 按URL返回预设的页面,同一URL可以按顺序返回多次不同结果
type fakeSite struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	visits    map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{responses: make(map[string][]fakeResponse), visits: make(map[string]int)}
}

func (s *fakeSite) set(url string, responses ...fakeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = responses
}

func (s *fakeSite) load(url string) fakeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.visits[url]
	s.visits[url]++
	seq := s.responses[url]
	if len(seq) == 0 {
		return fakeResponse{err: fmt.Errorf("no response for %s", url)}
	}
	if n >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[n]
}

func (s *fakeSite) visitCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits[url]
}

type fakePage struct {
	site    *fakeSite
	current fakeResponse
	closed  bool
	clicks  []string
	moves   int
	scrolls int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.current = p.site.load(url)
	return p.current.err
}

func (p *fakePage) Title(context.Context) (string, error) { return p.current.title, nil }
func (p *fakePage) HTML(context.Context) (string, error)  { return p.current.html, nil }

func (p *fakePage) WaitAttached(_ context.Context, selector string, _ time.Duration) error {
	for _, sel := range strings.Split(selector, ",") {
		if class := strings.TrimPrefix(strings.TrimSpace(sel), "."); class != "" && strings.Contains(p.current.html, class) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrSelectorNotFound, selector)
}

func (p *fakePage) Click(_ context.Context, selector string, _ time.Duration) error {
	p.clicks = append(p.clicks, selector)
	return errors.New("not found")
}

func (p *fakePage) MoveMouse(context.Context, float64, float64, int) error {
	p.moves++
	return nil
}

func (p *fakePage) Scroll(context.Context, float64, int) error {
	p.scrolls++
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeSession struct {
	id      string
	profile models.FingerprintProfile
	site    *fakeSite
}

func (s *fakeSession) ID() string                         { return s.id }
func (s *fakeSession) Profile() models.FingerprintProfile { return s.profile }
func (s *fakeSession) NewPage(context.Context) (Page, error) {
	return &fakePage{site: s.site}, nil
}

// fakeProvider 记录同时打开的会话数
type fakeProvider struct {
	site     *fakeSite
	hold     time.Duration // 创建会话后的停顿,让并发任务重叠
	failWith error

	mu       sync.Mutex
	open     int
	peak     int
	opened   int
	released int
}

func (p *fakeProvider) AcquireSession(ctx context.Context, profile models.FingerprintProfile) (Session, error) {
	if p.failWith != nil {
		return nil, p.failWith
	}
	p.mu.Lock()
	p.open++
	p.opened++
	if p.open > p.peak {
		p.peak = p.open
	}
	id := fmt.Sprintf("session-%d", p.opened)
	p.mu.Unlock()

	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	return &fakeSession{id: id, profile: profile, site: p.site}, nil
}

func (p *fakeProvider) ReleaseSession(Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open--
	p.released++
	return nil
}

func (p *fakeProvider) counts() (open, peak, opened, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, p.peak, p.opened, p.released
}

// recordingSleep 记录退避时长但不真正等待
type recordingSleep struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func testNavigator(t *testing.T, maxAttempts int) (*Navigator, *recordingSleep) {
	detector, err := NewBlockDetector(BlockIndicators{
		Selectors:     []string{"#captcha"},
		Phrases:       []string{"unusual traffic"},
		TitleKeywords: []string{"access denied"},
	})
	t.Helper()
	if err != nil {
		t.Fatalf("NewBlockDetector() error = %v", err)
	}
	cfg := DefaultNavigatorConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.Humanize = false
	cfg.DetourProbability = 0
	cfg.BlockJitter = 0
	cfg.ErrorJitter = 0

	nav := NewNavigator(cfg, detector, nil, nil)
	rec := &recordingSleep{}
	nav.sleep = rec.sleep
	return nav, rec
}

const blockedHTML = `<html><head><title>Access Denied</title></head><body><div id="captcha"></div></body></html>`
