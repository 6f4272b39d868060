package crawlers

import (
	"math/rand/v2"
	"sync"

	"github.com/furqank73/Web-Scraping/internal/models"
)

var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
	}
	viewportWidths  = []int{1366, 1440, 1536, 1600, 1920}
	viewportHeights = []int{768, 800, 864, 900, 1080}
	locales         = []string{"en-US", "en-GB", "en-CA"}
	timezones       = []string{"America/Los_Angeles", "America/New_York", "America/Chicago"}
	colorSchemes    = []models.ColorScheme{models.ColorSchemeLight, models.ColorSchemeDark, models.ColorSchemeNoPreference}
	scaleFactors    = []float64{1, 1.25, 1.5, 2}
)

// touchProbability 桌面指纹中带触屏的比例
const touchProbability = 0.1

// GenerateProfile 每个属性独立抽样生成指纹
// 没有状态也没有I/O,proxies为空时不使用代理
func GenerateProfile(r *rand.Rand, proxies []string) models.FingerprintProfile {
	profile := models.FingerprintProfile{
		UserAgent: pick(r, userAgents),
		Viewport: models.Viewport{
			Width:  pick(r, viewportWidths),
			Height: pick(r, viewportHeights),
		},
		Locale:            pick(r, locales),
		TimezoneID:        pick(r, timezones),
		ColorScheme:       pick(r, colorSchemes),
		DeviceScaleFactor: pick(r, scaleFactors),
		TouchCapable:      r.Float64() < touchProbability,
	}
	if len(proxies) > 0 {
		profile.ProxyAddress = pick(r, proxies)
	}
	return profile
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// ProfileGenerator 并发安全的指纹生成器
type ProfileGenerator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	proxies []string
}

// NewProfileGenerator 创建指纹生成器,rng为nil时使用随机种子
func NewProfileGenerator(rng *rand.Rand, proxies []string) *ProfileGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ProfileGenerator{rng: rng, proxies: proxies}
}

// Generate 为一次会话抽取新的指纹
func (g *ProfileGenerator) Generate() models.FingerprintProfile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GenerateProfile(g.rng, g.proxies)
}
