package crawlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
)

const okHTML = `<html><head><title>Joe's Pizza - New York</title></head><body><h1>Joe's Pizza</h1></body></html>`

func TestNavigateBlockedThreeTimes(t *testing.T) {
	nav, rec := testNavigator(t, 3)
	site := newFakeSite()
	const url = "https://example.test/mip/joes-pizza-1"
	site.set(url, fakeResponse{title: "Access Denied", html: blockedHTML})

	_, err := nav.Navigate(context.Background(), &fakePage{site: site}, url, NavigateOptions{})

	var blocked *models.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Navigate() error = %v, want *BlockedError", err)
	}
	if !errors.Is(err, models.ErrBlockDetected) {
		t.Errorf("errors.Is(err, ErrBlockDetected) = false, want true")
	}
	if blocked.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", blocked.Attempts)
	}
	if got := site.visitCount(url); got != 3 {
		t.Errorf("导航次数 = %d, want 3", got)
	}
	// 只有两次退避: 最后一次尝试后直接放弃
	sleeps := rec.durations()
	if len(sleeps) != 2 {
		t.Fatalf("退避次数 = %d, want 2", len(sleeps))
	}
	if sleeps[0] != 10*time.Second || sleeps[1] != 20*time.Second {
		t.Errorf("退避时长 = %v, want [10s 20s]", sleeps)
	}
	if blocked.Last.TitleSnapshot != "Access Denied" {
		t.Errorf("TitleSnapshot = %q, want %q", blocked.Last.TitleSnapshot, "Access Denied")
	}
}

func TestNavigateRecoversAfterBlock(t *testing.T) {
	nav, rec := testNavigator(t, 3)
	site := newFakeSite()
	const url = "https://example.test/search"
	site.set(url,
		fakeResponse{title: "Access Denied", html: blockedHTML},
		fakeResponse{title: "Joe's Pizza - New York", html: okHTML},
	)

	result, err := nav.Navigate(context.Background(), &fakePage{site: site}, url, NavigateOptions{})
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
	if result.Title != "Joe's Pizza - New York" {
		t.Errorf("Title = %q, want %q", result.Title, "Joe's Pizza - New York")
	}
	if len(rec.durations()) != 1 {
		t.Errorf("退避次数 = %d, want 1", len(rec.durations()))
	}
}

func TestNavigateTimeoutExhausted(t *testing.T) {
	nav, rec := testNavigator(t, 3)
	site := newFakeSite()
	const url = "https://example.test/slow"
	site.set(url, fakeResponse{err: models.ErrNavigationTimeout})

	_, err := nav.Navigate(context.Background(), &fakePage{site: site}, url, NavigateOptions{})
	if !errors.Is(err, models.ErrNavigationTimeout) {
		t.Fatalf("Navigate() error = %v, want ErrNavigationTimeout", err)
	}
	var blocked *models.BlockedError
	if errors.As(err, &blocked) {
		t.Errorf("超时不应返回 BlockedError")
	}
	sleeps := rec.durations()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 10*time.Second {
		t.Errorf("退避时长 = %v, want [5s 10s]", sleeps)
	}
}

func TestNavigateCancelled(t *testing.T) {
	nav, _ := testNavigator(t, 3)
	site := newFakeSite()
	site.set("https://example.test/", fakeResponse{html: okHTML})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := nav.Navigate(ctx, &fakePage{site: site}, "https://example.test/", NavigateOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Navigate() error = %v, want context.Canceled", err)
	}
}

func TestNavigateDetourAndHumanize(t *testing.T) {
	nav, _ := testNavigator(t, 1)
	nav.cfg.Humanize = true
	nav.detours = []string{"https://search.test/?q=pizza"}
	nav.consent = []string{"#onetrust-accept-btn-handler"}

	site := newFakeSite()
	site.set("https://search.test/?q=pizza", fakeResponse{html: "<html></html>"})
	site.set("https://example.test/", fakeResponse{title: "ok", html: okHTML})

	page := &fakePage{site: site}
	if _, err := nav.Navigate(context.Background(), page, "https://example.test/", NavigateOptions{ForceDetour: true}); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if site.visitCount("https://search.test/?q=pizza") != 1 {
		t.Errorf("第一次尝试前应先访问绕行页面")
	}
	if len(page.clicks) != 1 {
		t.Errorf("Cookie按钮点击次数 = %d, want 1", len(page.clicks))
	}
	if page.moves < 3 || page.scrolls < 3 {
		t.Errorf("模拟操作: moves=%d scrolls=%d, want >=3", page.moves, page.scrolls)
	}
}

func TestNavStateString(t *testing.T) {
	if got := NavBlockCheck.String(); got != "block_check" {
		t.Errorf("NavBlockCheck.String() = %q, want %q", got, "block_check")
	}
}
