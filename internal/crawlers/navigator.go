package crawlers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"golang.org/x/time/rate"
)

// NavState 导航状态机的状态
type NavState int

const (
	NavIdle NavState = iota
	NavNavigating
	NavBlockCheck
	NavSuccess
	NavRetrying
	NavFailed
)

func (s NavState) String() string {
	switch s {
	case NavIdle:
		return "idle"
	case NavNavigating:
		return "navigating"
	case NavBlockCheck:
		return "block_check"
	case NavSuccess:
		return "success"
	case NavRetrying:
		return "retrying"
	case NavFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NavigatorConfig 导航重试和退避参数
type NavigatorConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	BlockBackoffBase  time.Duration `mapstructure:"block_backoff_base"`
	BlockJitter       time.Duration `mapstructure:"block_jitter"`
	ErrorBackoffBase  time.Duration `mapstructure:"error_backoff_base"`
	ErrorJitter       time.Duration `mapstructure:"error_jitter"`
	Humanize          bool          `mapstructure:"humanize"`
	InteractionBudget time.Duration `mapstructure:"interaction_budget"` // 模拟操作的总时长上限
	DetourProbability float64       `mapstructure:"detour_probability"`
	DetourTimeout     time.Duration `mapstructure:"detour_timeout"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"` // <=0 不限速
	Burst             int           `mapstructure:"burst"`
}

// DefaultNavigatorConfig 默认导航参数
func DefaultNavigatorConfig() NavigatorConfig {
	return NavigatorConfig{
		MaxAttempts:       3,
		NavigationTimeout: 60 * time.Second,
		BlockBackoffBase:  10 * time.Second,
		BlockJitter:       10 * time.Second,
		ErrorBackoffBase:  5 * time.Second,
		ErrorJitter:       5 * time.Second,
		Humanize:          true,
		InteractionBudget: 15 * time.Second,
		DetourProbability: 0.5,
		DetourTimeout:     20 * time.Second,
		RatePerSecond:     0,
		Burst:             1,
	}
}

// NavigateOptions 单次导航的选项
type NavigateOptions struct {
	ForceDetour bool            // 第一次尝试前一定先绕行 (运行的第一个列表页)
	Viewport    models.Viewport // 鼠标移动的范围
}

// NavResult 导航成功的结果
type NavResult struct {
	Attempts int
	Title    string
}

// Navigator 带拦截检测和重试的导航控制器
type Navigator struct {
	cfg      NavigatorConfig
	detector *BlockDetector
	detours  []string
	consent  []string
	limiter  *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand

	// sleep 可替换,测试中记录退避时长
	sleep func(ctx context.Context, d time.Duration) error
}

// NewNavigator 创建导航控制器
// detours 为已经填好查询词的绕行URL,consent 为Cookie同意按钮的选择器
func NewNavigator(cfg NavigatorConfig, detector *BlockDetector, detours, consent []string) *Navigator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	n := &Navigator{
		cfg:      cfg,
		detector: detector,
		detours:  detours,
		consent:  consent,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:    sleepCtx,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return n
}

// Navigate 导航到url,被拦截或出错时退避重试
// 最后一次尝试仍被拦截时返回 *models.BlockedError
func (n *Navigator) Navigate(ctx context.Context, page Page, url string, opts NavigateOptions) (*NavResult, error) {
	log := utils.Logger.With().Str("url", url).Logger()
	state := NavIdle
	transition := func(next NavState, attempt int) {
		log.Debug().Str("from", state.String()).Str("to", next.String()).Int("attempt", attempt).Msg("导航状态")
		state = next
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		transition(NavNavigating, attempt)

		if n.limiter != nil {
			if err := n.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if (opts.ForceDetour && attempt == 1) || n.chance(n.cfg.DetourProbability) {
			n.detour(ctx, page)
		}

		err := n.load(ctx, page, url, opts.Viewport)
		if err != nil {
			if ctx.Err() != nil {
				transition(NavFailed, attempt)
				return nil, ctx.Err()
			}
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("导航失败")
			if attempt < n.cfg.MaxAttempts {
				transition(NavRetrying, attempt)
				if err := n.sleep(ctx, n.backoff(n.cfg.ErrorBackoffBase, n.cfg.ErrorJitter, attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		transition(NavBlockCheck, attempt)
		title, event := n.check(ctx, page, attempt)
		if event == nil {
			transition(NavSuccess, attempt)
			return &NavResult{Attempts: attempt, Title: title}, nil
		}

		lastErr = &models.BlockedError{URL: url, Attempts: attempt, Last: *event}
		log.Warn().Str("indicator", event.Indicator).Str("title", event.TitleSnapshot).Int("attempt", attempt).Msg("检测到拦截")
		if attempt < n.cfg.MaxAttempts {
			transition(NavRetrying, attempt)
			if err := n.sleep(ctx, n.backoff(n.cfg.BlockBackoffBase, n.cfg.BlockJitter, attempt)); err != nil {
				return nil, err
			}
		}
	}

	transition(NavFailed, n.cfg.MaxAttempts)
	if _, blocked := lastErr.(*models.BlockedError); blocked {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%d次尝试后导航失败: %w", n.cfg.MaxAttempts, lastErr)
}

// load 带超时加载页面,随后处理Cookie提示并模拟用户操作
func (n *Navigator) load(ctx context.Context, page Page, url string, viewport models.Viewport) error {
	navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	if err := page.Navigate(navCtx, url); err != nil {
		return err
	}
	n.dismissConsent(navCtx, page)
	if n.cfg.Humanize {
		n.interact(ctx, page, viewport)
	}
	return nil
}

func (n *Navigator) check(ctx context.Context, page Page, attempt int) (string, *models.BlockEvent) {
	checkCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	title, err := page.Title(checkCtx)
	if err != nil {
		utils.Logger.Debug().Err(err).Msg("读取页面标题失败")
	}
	if n.detector == nil {
		return title, nil
	}
	html, err := page.HTML(checkCtx)
	if err != nil {
		utils.Logger.Debug().Err(err).Msg("读取页面HTML失败")
	}
	return title, n.detector.Detect(title, html, attempt)
}

// detour 先访问一个无关页面作为来源,失败不影响导航
func (n *Navigator) detour(ctx context.Context, page Page) {
	if len(n.detours) == 0 {
		return
	}
	n.mu.Lock()
	target := n.detours[n.rng.IntN(len(n.detours))]
	n.mu.Unlock()

	timeout := n.cfg.DetourTimeout
	if timeout <= 0 {
		timeout = n.cfg.NavigationTimeout
	}
	detourCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Navigate(detourCtx, target); err != nil {
		utils.Logger.Debug().Err(err).Str("detour", target).Msg("绕行访问失败")
		return
	}
	_ = n.sleep(ctx, n.between(time.Second, 3*time.Second))
}

func (n *Navigator) dismissConsent(ctx context.Context, page Page) {
	for _, sel := range n.consent {
		if err := page.Click(ctx, sel, 500*time.Millisecond); err == nil {
			utils.Logger.Debug().Str("selector", sel).Msg("已关闭Cookie提示")
			return
		}
	}
}

// interact 随机移动鼠标并分段滚动,总时长不超过 InteractionBudget
func (n *Navigator) interact(ctx context.Context, page Page, viewport models.Viewport) {
	budget := n.cfg.InteractionBudget
	if budget <= 0 {
		return
	}
	ictx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	width, height := float64(viewport.Width), float64(viewport.Height)
	if width <= 0 || height <= 0 {
		width, height = 1366, 768
	}

	points := n.intBetween(3, 8)
	for i := 0; i < points && ictx.Err() == nil; i++ {
		x := width * (0.1 + 0.8*n.float())
		y := height * (0.1 + 0.8*n.float())
		if err := page.MoveMouse(ictx, x, y, n.intBetween(5, 15)); err != nil {
			return
		}
	}

	passes := n.intBetween(3, 7)
	for i := 0; i < passes && ictx.Err() == nil; i++ {
		if err := page.Scroll(ictx, float64(n.intBetween(200, 600)), n.intBetween(3, 8)); err != nil {
			return
		}
		if err := n.sleep(ictx, n.between(500*time.Millisecond, 2500*time.Millisecond)); err != nil {
			return
		}
	}
}

// backoff base*attempt + [0, jitter) 的随机抖动
func (n *Navigator) backoff(base, jitter time.Duration, attempt int) time.Duration {
	d := base * time.Duration(attempt)
	if jitter > 0 {
		d += time.Duration(n.float() * float64(jitter))
	}
	return d
}

func (n *Navigator) float() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rng.Float64()
}

func (n *Navigator) chance(p float64) bool {
	return p > 0 && n.float() < p
}

func (n *Navigator) intBetween(lo, hi int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo + n.rng.IntN(hi-lo+1)
}

func (n *Navigator) between(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(n.float()*float64(hi-lo))
}

// sleepCtx 可被取消的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
