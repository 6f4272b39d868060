package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/models"
)

const listingPage1 = `<html><head><title>Pizza in New York</title></head><body>
<div class="search-results organic">
  <div class="result"><a class="business-name" href="/new-york-ny/mip/joes-pizza-12345678">Joe's Pizza</a></div>
  <div class="result"><a class="business-name" href="/new-york-ny/mip/lucias-slice-23456789">Lucia's Slice</a></div>
  <div class="result"><a class="business-name" href="/about">About us</a></div>
</div></body></html>`

const listingPage2 = `<html><head><title>Pizza in New York - Page 2</title></head><body>
<div class="search-results organic">
  <div class="result"><a class="business-name" href="/new-york-ny/mip/joes-pizza-12345678/">Joe's Pizza</a></div>
  <div class="result"><a class="business-name" href="/new-york-ny/mip/gated-pies-34567890">Gated Pies</a></div>
</div></body></html>`

const joesDetail = `<html><head><title>Joe's Pizza - New York, NY</title>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Restaurant","name":"Joe's Pizza",
"telephone":"2125550134","priceRange":"$$",
"address":{"@type":"PostalAddress","streetAddress":"7 Carmine St","addressLocality":"New York","addressRegion":"NY","postalCode":"10014"}}</script>
</head><body><h1>Joe's Pizza</h1></body></html>`

const luciasDetail = `<html><head><title>Lucia's Slice | Pizza</title></head><body>
<h1 class="business-name">Lucia's Slice</h1>
<div class="phone">(718) 555-0199</div>
</body></html>`

const gatedDetail = `<html><head><title>One moment</title></head><body>
<div class="g-recaptcha"></div><p>Please wait</p></body></html>`

type siteServer struct {
	*httptest.Server
	mu     sync.Mutex
	visits map[string]int
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{visits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.visits[r.URL.Path]++
		s.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("page") == "2":
			fmt.Fprint(w, listingPage2)
		case r.URL.Path == "/search":
			fmt.Fprint(w, listingPage1)
		case strings.HasSuffix(r.URL.Path, "joes-pizza-12345678"):
			fmt.Fprint(w, joesDetail)
		case strings.HasSuffix(r.URL.Path, "lucias-slice-23456789"):
			fmt.Fprint(w, luciasDetail)
		case strings.HasSuffix(r.URL.Path, "gated-pies-34567890"):
			fmt.Fprint(w, gatedDetail)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *siteServer) visitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits[path]
}

// testHarvestConfig 静态模式、无延迟、只尝试一次的配置
func testHarvestConfig(t *testing.T, seedURL string) (*Config, *config.SiteProfile) {
	t.Helper()
	cfg, err := LoadConfig(writeConfigFile(t, "harvest:\n  mode: static\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.Harvest.SeedURL = seedURL
	cfg.Harvest.PageLimit = 2
	cfg.Harvest.Concurrency = 2
	cfg.Harvest.ResourceCap = false
	cfg.Harvest.TaskTimeout = 30
	cfg.Navigation.MaxAttempts = 1
	cfg.Navigation.Humanize = false
	cfg.Navigation.DetourProbability = 0
	cfg.Scheduler = SchedulerConfig{}
	cfg.Output.BaseDir = t.TempDir()
	cfg.Output.SQLite = filepath.Join(cfg.Output.BaseDir, "records.db")

	site, err := config.LoadSiteProfile("")
	if err != nil {
		t.Fatalf("LoadSiteProfile() error = %v", err)
	}
	site.Navigation.DetourURLs = nil
	site.Discovery.ContainerTimeout = 0
	site.Detail.WaitTimeout = 0
	return cfg, site
}

func readRecords(t *testing.T, path string) map[string]map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取输出失败: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("解析输出失败: %v", err)
	}
	byName := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		byName[fmt.Sprint(row[models.FieldName])] = row
	}
	return byName
}

func TestHarvester_Run(t *testing.T) {
	server := newSiteServer(t)
	cfg, site := testHarvestConfig(t, server.URL+"/search")

	h, err := NewHarvester(cfg, site, nil)
	if err != nil {
		t.Fatalf("NewHarvester() error = %v", err)
	}
	report, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Stats.PagesVisited != 2 {
		t.Errorf("PagesVisited = %d, want 2", report.Stats.PagesVisited)
	}
	if report.Stats.TargetsFound != 3 {
		t.Errorf("TargetsFound = %d, want 3", report.Stats.TargetsFound)
	}
	if report.Stats.Records != 3 || report.Stats.Succeeded != 2 || report.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want records 3, succeeded 2, failed 1", report.Stats)
	}
	if h.Task().Status != models.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", h.Task().Status)
	}

	if len(report.FailedTargets) != 1 {
		t.Fatalf("FailedTargets = %+v, want 1", report.FailedTargets)
	}
	failed := report.FailedTargets[0]
	if failed.ErrorType != "blocked" || failed.Title != "Gated Pies" {
		t.Errorf("FailedTargets[0] = %+v, want blocked Gated Pies", failed)
	}

	var jsonFile string
	exts := make([]string, 0, len(report.OutputFiles))
	for _, f := range report.OutputFiles {
		exts = append(exts, filepath.Ext(f))
		if filepath.Ext(f) == ".json" {
			jsonFile = f
		}
	}
	sort.Strings(exts)
	if strings.Join(exts, ",") != ".csv,.json" {
		t.Fatalf("OutputFiles = %v", report.OutputFiles)
	}

	records := readRecords(t, jsonFile)
	joe, ok := records["Joe's Pizza"]
	if !ok {
		t.Fatalf("缺少 Joe's Pizza: %v", records)
	}
	wantJoe := map[string]any{
		models.FieldPhone:      "(212) 555-0134",
		models.FieldCity:       "New York",
		models.FieldListingID:  "12345678",
		models.FieldPriceRange: "$$",
		models.FieldSource:     "yellowpages",
	}
	for k, want := range wantJoe {
		if joe[k] != want {
			t.Errorf("joe[%s] = %v, want %v", k, joe[k], want)
		}
	}
	if _, ok := records["Lucia's Slice"]; !ok {
		t.Errorf("缺少 Lucia's Slice: %v", records)
	}
	gated := records["Gated Pies"]
	if gated == nil || gated[models.FieldExtractionError] == nil {
		t.Errorf("Gated Pies 应为带错误的占位记录: %v", gated)
	}

	// 重复的详情页只访问一次
	if got := server.visitCount("/new-york-ny/mip/joes-pizza-12345678"); got != 1 {
		t.Errorf("joe 访问次数 = %d, want 1", got)
	}

	reports, _ := filepath.Glob(filepath.Join(h.OutputDir(), "reports", "harvest_report_*.json"))
	if len(reports) != 1 {
		t.Errorf("报告文件 = %v, want 1", reports)
	}
}

func TestHarvester_Resume(t *testing.T) {
	server := newSiteServer(t)
	cfg, site := testHarvestConfig(t, server.URL+"/search")
	cfg.Output.SQLite = ""

	first, err := NewHarvester(cfg, site, nil)
	if err != nil {
		t.Fatalf("NewHarvester() error = %v", err)
	}
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cfg.Harvest.Resume = true
	second, err := NewHarvester(cfg, site, nil)
	if err != nil {
		t.Fatalf("NewHarvester() error = %v", err)
	}
	report, err := second.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Stats.TargetsFound != 3 {
		t.Errorf("TargetsFound = %d, want 3 (from checkpoint)", report.Stats.TargetsFound)
	}
	if report.Stats.Records != 0 {
		t.Errorf("Records = %d, want 0: 已完成的目标应被跳过", report.Stats.Records)
	}
	if got := server.visitCount("/search"); got != 2 {
		t.Errorf("列表页访问次数 = %d, want 2", got)
	}
}

func TestHarvester_StopsResourceMonitor(t *testing.T) {
	server := newSiteServer(t)
	cfg, site := testHarvestConfig(t, server.URL+"/search")
	cfg.Output.SQLite = ""
	cfg.Harvest.ResourceCap = true
	cfg.Resource.SafetyReserveMemory = 0
	cfg.Resource.SessionMemory = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		h, err := NewHarvester(cfg, site, nil)
		if err != nil {
			t.Fatalf("NewHarvester() error = %v", err)
		}
		if _, err := h.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if h.monitor == nil {
			t.Fatal("ResourceCap 开启时应创建资源监控")
		}
		if h.monitor.Monitoring() {
			t.Errorf("第%d次 Run() 返回后资源监控仍在运行", i+1)
		}
	}
}

func TestHarvester_InvalidConfig(t *testing.T) {
	cfg, site := testHarvestConfig(t, "")
	cfg.Harvest.SearchTerm = "pizza"

	if _, err := NewHarvester(cfg, site, nil); err == nil {
		t.Error("缺少地点时期望错误")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"已分类", map[string]any{models.FieldErrorKind: models.ErrorKindTimeout}, models.ErrorKindTimeout},
		{"未分类", map[string]any{models.FieldExtractionError: "boom"}, models.ErrorKindError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(models.NewRecord(tt.fields)); got != tt.want {
				t.Errorf("errorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckpointStore_Discovered(t *testing.T) {
	type page struct {
		num int
		ok  bool
	}
	tests := []struct {
		name  string
		pages []page
		want  int
	}{
		{"全部成功", []page{{1, true}, {2, true}, {3, true}}, 3},
		{"中间页失败", []page{{1, true}, {2, false}, {3, true}}, 1},
		{"第一页失败", []page{{1, false}, {2, true}}, 0},
		{"缺页", []page{{1, true}, {3, true}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cp.json")
			task := &models.HarvestTask{ID: "t1", Site: "yp", StartURL: "https://example.com/search"}
			store := newCheckpointStore(path, task, models.HarvestConfig{})
			for _, p := range tt.pages {
				added := []models.TargetDescriptor{{URL: fmt.Sprintf("https://example.com/mip/%d", p.num)}}
				store.discovered(p.num, added, p.ok)
			}

			cp, err := models.LoadCheckpointFromFile(path)
			if err != nil {
				t.Fatalf("LoadCheckpointFromFile() error = %v", err)
			}
			if cp.PagesVisited != tt.want {
				t.Errorf("PagesVisited = %d, want %d", cp.PagesVisited, tt.want)
			}
			if len(cp.Targets) != len(tt.pages) {
				t.Errorf("Targets = %d, want %d", len(cp.Targets), len(tt.pages))
			}
		})
	}
}
