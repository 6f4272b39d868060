package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage 浏览器页面
type rodPage struct {
	page *rod.Page

	// 鼠标事件直接发给绑定 ctx 的页面, rod.Mouse 总是使用页面自身的 ctx
	pos      proto.Point
	dispatch func(context.Context, proto.InputDispatchMouseEvent) error
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return timeoutErr(ctx, fmt.Errorf("导航失败 [%s]: %w", url, err))
	}
	if err := page.WaitLoad(); err != nil {
		return timeoutErr(ctx, fmt.Errorf("等待页面加载失败 [%s]: %w", url, err))
	}
	return nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) WaitAttached(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", models.ErrSelectorNotFound, selector)
		}
		return err
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) MoveMouse(ctx context.Context, x, y float64, steps int) error {
	for _, pt := range linearPath(p.pos, proto.Point{X: x, Y: y}, steps) {
		err := p.sendMouse(ctx, proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseMoved,
			X:    pt.X,
			Y:    pt.Y,
		})
		if err != nil {
			return err
		}
		p.pos = pt
	}
	return nil
}

func (p *rodPage) Scroll(ctx context.Context, dy float64, steps int) error {
	if steps < 1 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		err := p.sendMouse(ctx, proto.InputDispatchMouseEvent{
			Type:   proto.InputDispatchMouseEventTypeMouseWheel,
			X:      p.pos.X,
			Y:      p.pos.Y,
			DeltaY: dy / float64(steps),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sendMouse 每个事件发送前检查 ctx
func (p *rodPage) sendMouse(ctx context.Context, ev proto.InputDispatchMouseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.dispatch != nil {
		return p.dispatch(ctx, ev)
	}
	return ev.Call(p.page.Context(ctx))
}

// linearPath 从 from 到 to 的 steps 个点,最后一个点就是 to
func linearPath(from, to proto.Point, steps int) []proto.Point {
	if steps < 1 {
		steps = 1
	}
	path := make([]proto.Point, steps)
	for i := range path {
		f := float64(i+1) / float64(steps)
		path[i] = proto.Point{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f}
	}
	path[steps-1] = to
	return path
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

// timeoutErr 导航超时统一包装为 models.ErrNavigationTimeout
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrNavigationTimeout, err)
	}
	return err
}
