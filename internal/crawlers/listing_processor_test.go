package crawlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/furqank73/Web-Scraping/internal/extract"
	"github.com/furqank73/Web-Scraping/internal/models"
)

const detailHTML = `<html><head><title>Joe's Pizza - New York, NY</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Restaurant","name":"Joe's Pizza",
 "telephone":"1 (212) 555-0134","priceRange":"$$",
 "address":{"@type":"PostalAddress","streetAddress":"7 Carmine St","addressLocality":"New York","addressRegion":"NY","postalCode":"10014"}}
</script></head>
<body><div class="sales-info"><h1>Joe's Pizza</h1></div></body></html>`

func testListingProcessor(t *testing.T, debugDir string) *ListingProcessor {
	t.Helper()
	pipeline, err := extract.NewPipeline(extract.Options{Source: "test"})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	nav, _ := testNavigator(t, 3)
	return NewListingProcessor(nav, pipeline, []string{".sales-info"}, time.Second, NewDebugRecorder(debugDir, debugDir != ""))
}

func TestListingProcessorProcess(t *testing.T) {
	site := newFakeSite()
	target := models.TargetDescriptor{URL: "https://www.example.test/mip/joes-pizza-12345678", DiscoveredTitle: "Joe's Pizza", SourcePageIndex: 1}
	site.set(target.URL, fakeResponse{title: "Joe's Pizza - New York, NY", html: detailHTML})

	lp := testListingProcessor(t, "")
	record, err := lp.Process(context.Background(), &fakeSession{id: "s1", site: site}, target)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	checks := map[string]string{
		models.FieldName:       "Joe's Pizza",
		models.FieldPhone:      "(212) 555-0134",
		models.FieldPriceRange: "$$",
		models.FieldCity:       "New York",
		models.FieldListingURL: target.URL,
		models.FieldListingID:  "12345678",
		models.FieldSource:     "test",
	}
	for field, want := range checks {
		if got := record.String(field); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
	if record.Failed() {
		t.Errorf("extraction_error = %q, want none", record.String(models.FieldExtractionError))
	}
}

func TestListingProcessorBlocked(t *testing.T) {
	dir := t.TempDir()
	site := newFakeSite()
	target := models.TargetDescriptor{URL: "https://www.example.test/mip/joes-pizza-12345678", DiscoveredTitle: "Joe's Pizza"}
	site.set(target.URL, fakeResponse{title: "Access Denied", html: blockedHTML})

	lp := testListingProcessor(t, dir)
	_, err := lp.Process(context.Background(), &fakeSession{id: "s1", site: site}, target)

	var blocked *models.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Process() error = %v, want *BlockedError", err)
	}
	if blocked.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", blocked.Attempts)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "debug", "blocked_12345678_*"))
	if len(files) != 2 {
		t.Errorf("调试文件 = %v, want png 和 html", files)
	}

	stub := lp.Stub(target, err)
	if stub.String(models.FieldName) != "Joe's Pizza" || !stub.Failed() {
		t.Errorf("Stub() = %v, want 名称和错误信息", stub.Fields())
	}
}

func TestDebugRecorderDisabled(t *testing.T) {
	dir := t.TempDir()
	rec := NewDebugRecorder(dir, false)
	if files := rec.Capture(context.Background(), &fakePage{}, "no_results_page_1"); files != nil {
		t.Errorf("Capture() = %v, want nil", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug")); !os.IsNotExist(err) {
		t.Error("关闭调试时不应创建目录")
	}
}

func TestListingReason(t *testing.T) {
	tests := []struct {
		name   string
		target models.TargetDescriptor
		want   string
	}{
		{"路径带ID", models.TargetDescriptor{URL: "https://www.example.test/mip/joes-pizza-12345678", DiscoveredTitle: "Joe's Pizza"}, "12345678"},
		{"没有ID时用标题", models.TargetDescriptor{URL: "https://www.example.test/business/joes", DiscoveredTitle: "Joe's Pizza"}, "Joe's Pizza"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listingReason(tt.target); got != tt.want {
				t.Errorf("listingReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
