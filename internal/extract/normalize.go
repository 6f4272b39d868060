package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// 只看开头,查询参数里的 "://" 不算协议
var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// 网站链接中被去掉的跟踪参数
var trackingParams = []string{"y_source", "gclid", "fbclid", "mc_cid", "mc_eid", "ref_src"}

// Normalize 规范化合并后的字段,对已规范化的结果再次执行不产生变化
func Normalize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	if phone, ok := out[models.FieldPhone].(string); ok {
		out[models.FieldPhone] = NormalizePhone(phone)
	}
	if website, ok := out[models.FieldWebsite].(string); ok {
		out[models.FieldWebsite] = NormalizeWebsite(website)
	}

	if cuisine, ok := out[models.FieldCuisine]; ok {
		if categories, ok := out[models.FieldCategories]; ok &&
			strings.EqualFold(flatten(cuisine), flatten(categories)) {
			delete(out, models.FieldCuisine)
		}
	}

	if desc, ok := out[models.FieldPriceRangeDescription]; ok {
		if _, has := out[models.FieldPriceRange]; !has {
			out[models.FieldPriceRange] = desc
			delete(out, models.FieldPriceRangeDescription)
		} else if strings.EqualFold(flatten(desc), flatten(out[models.FieldPriceRange])) {
			delete(out, models.FieldPriceRangeDescription)
		}
	}
	return out
}

// NormalizeRecord 规范化一条记录,返回新记录
func NormalizeRecord(r models.Record) models.Record {
	return models.NewRecord(Normalize(r.Fields()))
}

// NormalizePhone 10位号码(或以1开头的11位)格式化为 (XXX) XXX-XXXX,其它位数保持原样
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return phone
	}
	return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:])
}

// NormalizeWebsite 补全协议并去掉跟踪参数
func NormalizeWebsite(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return website
	}
	if !schemePrefix.MatchString(website) {
		website = "https://" + strings.TrimPrefix(website, "//")
	}

	parsed, err := url.Parse(website)
	if err != nil || parsed.RawQuery == "" {
		return website
	}
	query := parsed.Query()
	removed := false
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
			removed = true
		}
	}
	if !removed {
		return website
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	for _, p := range trackingParams {
		if key == p {
			return true
		}
	}
	return false
}

// flatten 把字符串或字符串列表转换为可比较的文本
func flatten(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
