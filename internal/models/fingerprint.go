package models

import "fmt"

// ColorScheme 浏览器配色偏好
type ColorScheme string

const (
	ColorSchemeLight        ColorScheme = "light"
	ColorSchemeDark         ColorScheme = "dark"
	ColorSchemeNoPreference ColorScheme = "no-preference"
)

// Viewport 视口尺寸
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FingerprintProfile 浏览器身份描述
// 每个会话创建时重新生成,不跨运行持久化
type FingerprintProfile struct {
	UserAgent         string      `json:"user_agent"`
	Viewport          Viewport    `json:"viewport"`
	Locale            string      `json:"locale"`
	TimezoneID        string      `json:"timezone_id"`
	ColorScheme       ColorScheme `json:"color_scheme"`
	DeviceScaleFactor float64     `json:"device_scale_factor"`
	TouchCapable      bool        `json:"touch_capable"`
	ProxyAddress      string      `json:"proxy_address,omitempty"` // 为空表示直连
}

// AcceptLanguage 根据locale生成Accept-Language头
func (p FingerprintProfile) AcceptLanguage() string {
	switch p.Locale {
	case "", "en-US":
		return "en-US,en;q=0.9"
	default:
		return fmt.Sprintf("%s,en-US;q=0.9,en;q=0.8", p.Locale)
	}
}
