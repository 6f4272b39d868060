package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/furqank73/Web-Scraping/internal/config"
	"github.com/furqank73/Web-Scraping/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
)

type level int

const (
	pass level = iota
	warn
	fail
)

type result struct {
	level  level
	detail string
	hint   string
}

type check struct {
	name string
	run  func() result
}

var checks = []check{
	{"Go", func() result {
		return result{pass, fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), ""}
	}},
	// 找不到时rod会在首次运行浏览器模式时下载Chromium
	{"浏览器", func() result {
		if path, ok := launcher.LookPath(); ok {
			return result{pass, path, ""}
		}
		return result{warn, "未找到本地Chrome/Chromium", "首次运行浏览器模式时会自动下载,或使用 --mode static"}
	}},
	// go-sqlite3 需要cgo
	{"gcc", func() result {
		if err := exec.Command("gcc", "--version").Run(); err != nil {
			return result{warn, "未安装", "--sqlite 需要 CGO_ENABLED=1 和C编译器"}
		}
		return result{pass, "SQLite输出可用", ""}
	}},
	{"内存", func() result {
		monitor := crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
		status := monitor.GetMemoryStatus()
		detail := fmt.Sprintf("可用 %dMB / 总计 %dMB (%s), 建议并发会话数 %d",
			status.AvailableMemory>>20, status.TotalMemory>>20, status.MemoryPressure, monitor.CalculateMaxSessions(16))
		if ok, reason := monitor.CheckResourceAvailability(); !ok {
			return result{warn, detail, reason}
		}
		return result{pass, detail, ""}
	}},
	{"内置站点配置", func() result {
		site, err := config.LoadSiteProfile("")
		if err != nil {
			return result{fail, err.Error(), ""}
		}
		return result{pass, site.Name, ""}
	}},
	{"项目结构", func() result {
		for _, dir := range []string{"cmd/harvester", "internal/core", "internal/crawlers", "internal/extract", "internal/storage", "internal/models"} {
			if _, err := os.Stat(dir); err != nil {
				return result{fail, dir + " 不存在", "在项目根目录运行"}
			}
		}
		return result{pass, "完整", ""}
	}},
}

func main() {
	fmt.Println("Harvester 环境验证")
	fmt.Println()

	failed := false
	for _, c := range checks {
		r := c.run()
		fmt.Printf("%s %-12s %s\n", [...]string{"✅", "⚠️ ", "❌"}[r.level], c.name, r.detail)
		if r.hint != "" {
			fmt.Printf("   %s\n", r.hint)
		}
		failed = failed || r.level == fail
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
	fmt.Println("✅ 环境验证通过,运行 'go build -o harvester ./cmd/harvester' 构建项目")
}
