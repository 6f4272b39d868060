package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
)

func mustDoc(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("解析HTML失败: %v", err)
	}
	return doc.Selection
}

func TestChain_FirstRuleWins(t *testing.T) {
	doc := mustDoc(t, `
		<div class="a"><span></span></div>
		<div class="b"><a>One</a><a>Two</a></div>
		<div class="c"><a>Three</a></div>`)

	chain, err := CompileChain([]string{".a span", ".b a", "a"}, TextOf)
	if err != nil {
		t.Fatalf("CompileChain() error = %v", err)
	}

	values, selector, err := chain.All(doc)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if selector != ".b a" {
		t.Errorf("selector = %q, want %q", selector, ".b a")
	}
	if len(values) != 2 || values[0] != "One" || values[1] != "Two" {
		t.Errorf("values = %v, want [One Two]", values)
	}

	first, _, ok := chain.First(doc)
	if !ok || first != "One" {
		t.Errorf("First() = %q, %v, want One, true", first, ok)
	}
}

func TestChain_NoMatch(t *testing.T) {
	doc := mustDoc(t, `<p>nothing</p>`)
	chain, err := CompileChain([]string{".result a", ".listing a"}, TextOf)
	if err != nil {
		t.Fatalf("CompileChain() error = %v", err)
	}

	if _, _, err := chain.All(doc); !errors.Is(err, models.ErrSelectorNotFound) {
		t.Errorf("All() error = %v, want ErrSelectorNotFound", err)
	}
	if _, ok := chain.Matches(doc); ok {
		t.Error("Matches() = true, want false")
	}
}

func TestChain_InvalidSelector(t *testing.T) {
	if _, err := CompileChain([]string{"div[", ".ok"}, TextOf); err == nil {
		t.Error("无效选择器应返回错误")
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"Payment method:":   "payment_method",
		"  Regular Hours ":  "regular_hours",
		"Other Information": "other_information",
		"AKA (also known)":  "aka_also_known",
	}
	for in, want := range tests {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
