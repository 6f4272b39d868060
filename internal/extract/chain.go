package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/furqank73/Web-Scraping/internal/models"
)

// Rule 选择器回退链中的一项: 选择器 + 提取函数
type Rule[T any] struct {
	Selector string
	Extract  func(*goquery.Selection) (T, bool)
	matcher  cascadia.Selector
}

// NewRule 编译选择器并创建规则
func NewRule[T any](selector string, extract func(*goquery.Selection) (T, bool)) (Rule[T], error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return Rule[T]{}, fmt.Errorf("无效的选择器 %q: %w", selector, err)
	}
	return Rule[T]{Selector: selector, Extract: extract, matcher: matcher}, nil
}

// Chain 有序的选择器回退链
// 按顺序尝试每条规则,第一条产出结果的规则胜出,不同规则的结果从不合并
type Chain[T any] struct {
	rules []Rule[T]
}

// NewChain 用已编译的规则创建回退链
func NewChain[T any](rules ...Rule[T]) Chain[T] {
	return Chain[T]{rules: rules}
}

// CompileChain 多个选择器共用同一个提取函数
func CompileChain[T any](selectors []string, extract func(*goquery.Selection) (T, bool)) (Chain[T], error) {
	rules := make([]Rule[T], 0, len(selectors))
	for _, sel := range selectors {
		rule, err := NewRule(sel, extract)
		if err != nil {
			return Chain[T]{}, err
		}
		rules = append(rules, rule)
	}
	return NewChain(rules...), nil
}

// Len 规则数量
func (c Chain[T]) Len() int {
	return len(c.rules)
}

// All 返回第一条至少产出一个值的规则的全部结果,以及该规则的选择器
// 所有规则都没有结果时返回 models.ErrSelectorNotFound
func (c Chain[T]) All(root *goquery.Selection) ([]T, string, error) {
	for _, rule := range c.rules {
		var out []T
		root.FindMatcher(rule.matcher).Each(func(_ int, s *goquery.Selection) {
			if v, ok := rule.Extract(s); ok {
				out = append(out, v)
			}
		})
		if len(out) > 0 {
			return out, rule.Selector, nil
		}
	}
	return nil, "", models.ErrSelectorNotFound
}

// First 返回第一个成功提取的值
func (c Chain[T]) First(root *goquery.Selection) (T, string, bool) {
	for _, rule := range c.rules {
		var (
			found T
			ok    bool
		)
		root.FindMatcher(rule.matcher).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found, ok = rule.Extract(s)
			return !ok
		})
		if ok {
			return found, rule.Selector, true
		}
	}
	var zero T
	return zero, "", false
}

// Matches 是否有任意规则的选择器命中元素 (不调用提取函数)
func (c Chain[T]) Matches(root *goquery.Selection) (string, bool) {
	for _, rule := range c.rules {
		if root.FindMatcher(rule.matcher).Length() > 0 {
			return rule.Selector, true
		}
	}
	return "", false
}

// TextOf 提取元素的规范化文本,空文本视为失败
func TextOf(s *goquery.Selection) (string, bool) {
	text := CleanText(s.Text())
	return text, text != ""
}
