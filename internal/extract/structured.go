package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/furqank73/Web-Scraping/internal/models"
)

// 字段映射的取值方式
const (
	KindText   = "text"   // 字符串; 列表用 ", " 连接; 对象取name
	KindURL    = "url"    // 第一个http(s)链接; 对象取url/contentUrl/@id
	KindNumber = "number" // 数值
	KindList   = "list"   // 字符串列表
)

// FieldMapping 结构化数据字段映射: 多个源字段映射到一个规范字段,第一个存在的源字段胜出
type FieldMapping struct {
	Field string   `mapstructure:"field" yaml:"field"`
	Keys  []string `mapstructure:"keys" yaml:"keys"`
	Kind  string   `mapstructure:"kind" yaml:"kind"`
}

// StructuredOptions 结构化数据提取配置
type StructuredOptions struct {
	Selector       string         `mapstructure:"selector" yaml:"selector"`               // 默认 script[type="application/ld+json"]
	PreferredTypes []string       `mapstructure:"preferred_types" yaml:"preferred_types"` // 按优先级排列的 @type
	Fields         []FieldMapping `mapstructure:"fields" yaml:"fields"`
}

// DefaultFieldMappings schema.org 常用字段映射
func DefaultFieldMappings() []FieldMapping {
	return []FieldMapping{
		{Field: models.FieldName, Keys: []string{"name"}},
		{Field: models.FieldPhone, Keys: []string{"telephone", "phone"}},
		{Field: models.FieldWebsite, Keys: []string{"url", "website", "sameAs"}, Kind: KindURL},
		{Field: models.FieldPriceRange, Keys: []string{"priceRange"}},
		{Field: "description", Keys: []string{"description", "about"}},
		{Field: "business_id", Keys: []string{"@id"}},
		{Field: "image", Keys: []string{"image", "photo", "logo"}, Kind: KindURL},
		{Field: models.FieldEmail, Keys: []string{"email"}},
		{Field: models.FieldCuisine, Keys: []string{"servesCuisine"}},
		{Field: "payment_accepted", Keys: []string{"paymentAccepted"}},
	}
}

// StructuredExtractor 内嵌结构化数据 (JSON-LD) 提取器
type StructuredExtractor struct {
	selector  string
	preferred []string
	fields    []FieldMapping
}

// NewStructuredExtractor 创建结构化数据提取器
func NewStructuredExtractor(opts StructuredOptions) (*StructuredExtractor, error) {
	selector := opts.Selector
	if selector == "" {
		selector = `script[type="application/ld+json"]`
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = DefaultFieldMappings()
	}
	for _, f := range fields {
		if f.Field == "" || len(f.Keys) == 0 {
			return nil, fmt.Errorf("字段映射缺少字段名或源字段: %+v", f)
		}
		switch f.Kind {
		case "", KindText, KindURL, KindNumber, KindList:
		default:
			return nil, fmt.Errorf("字段 %s 的取值方式无效: %q", f.Field, f.Kind)
		}
	}
	return &StructuredExtractor{
		selector:  selector,
		preferred: opts.PreferredTypes,
		fields:    fields,
	}, nil
}

// Extract 解析页面中的结构化数据块
// 所有数据块都无法解析时返回空片段和 models.ErrMalformedStructuredData
func (x *StructuredExtractor) Extract(doc *goquery.Selection) (*models.Fragment, error) {
	fragment := models.NewFragment(models.StrategyStructured)

	var (
		items     []map[string]any
		malformed int
		lastErr   error
	)
	doc.Find(x.selector).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			malformed++
			lastErr = err
			return
		}
		items = append(items, flattenItems(parsed)...)
	})

	if len(items) == 0 {
		if malformed > 0 {
			return fragment, fmt.Errorf("%w: %d个数据块无法解析: %v", models.ErrMalformedStructuredData, malformed, lastErr)
		}
		return fragment, nil
	}

	item := x.pick(items)
	x.mapFields(item, fragment)
	mapAddress(item["address"], fragment)
	mapGeo(item["geo"], fragment)
	mapRating(item["aggregateRating"], fragment)
	mapHours(item, fragment)
	mapReviews(item["review"], fragment)
	mapMenu(item["hasMenu"], fragment)

	return fragment, nil
}

// flattenItems 展开数组和 @graph
func flattenItems(v any) []map[string]any {
	switch val := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range val {
			out = append(out, flattenItems(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := val["@graph"].([]any); ok {
			return flattenItems(graph)
		}
		return []map[string]any{val}
	default:
		return nil
	}
}

// pick 选择类型最匹配的数据块,没有匹配时使用第一个
func (x *StructuredExtractor) pick(items []map[string]any) map[string]any {
	for _, want := range x.preferred {
		for _, item := range items {
			for _, t := range typesOf(item) {
				if strings.EqualFold(t, want) {
					return item
				}
			}
		}
	}
	return items[0]
}

func typesOf(item map[string]any) []string {
	var types []string
	add := func(v any) {
		if s, ok := v.(string); ok {
			if i := strings.LastIndexAny(s, "/#"); i >= 0 {
				s = s[i+1:]
			}
			types = append(types, s)
		}
	}
	switch t := item["@type"].(type) {
	case []any:
		for _, v := range t {
			add(v)
		}
	default:
		add(t)
	}
	return types
}

func (x *StructuredExtractor) mapFields(item map[string]any, fragment *models.Fragment) {
	for _, mapping := range x.fields {
		for _, key := range mapping.Keys {
			value, ok := coerce(item[key], mapping.Kind)
			if !ok {
				continue
			}
			fragment.Set(mapping.Field, value)
			break
		}
	}
}

// coerce 按取值方式转换JSON值
func coerce(v any, kind string) (any, bool) {
	if models.IsEmptyValue(v) {
		return nil, false
	}
	switch kind {
	case KindURL:
		u := firstURL(v)
		return u, u != ""
	case KindNumber:
		f, ok := toFloat(v)
		return f, ok
	case KindList:
		list := toStrings(v)
		return list, len(list) > 0
	default:
		s := toText(v)
		return s, s != ""
	}
}

func firstURL(v any) string {
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
			return val
		}
	case []any:
		for _, item := range val {
			if u := firstURL(item); u != "" {
				return u
			}
		}
	case map[string]any:
		for _, key := range []string{"url", "contentUrl", "@id"} {
			if u := firstURL(val[key]); u != "" {
				return u
			}
		}
	}
	return ""
}

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return CleanText(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		return strings.Join(toStrings(val), ", ")
	case map[string]any:
		return toText(val["name"])
	}
	return ""
}

func toStrings(v any) []string {
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := toText(item); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := toText(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func firstKey(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && !models.IsEmptyValue(v) {
			return v
		}
	}
	return nil
}

// mapAddress 支持 PostalAddress 对象和 "街道, 城市, 州 邮编" 字符串
func mapAddress(v any, fragment *models.Fragment) {
	switch addr := v.(type) {
	case map[string]any:
		fragment.Set(models.FieldStreetAddress, toText(firstKey(addr, "streetAddress", "street")))
		fragment.Set(models.FieldCity, toText(firstKey(addr, "addressLocality", "city")))
		fragment.Set(models.FieldState, toText(firstKey(addr, "addressRegion", "state")))
		fragment.Set(models.FieldZipCode, toText(firstKey(addr, "postalCode", "zip", "zipCode")))
		fragment.Set(models.FieldCountry, toText(firstKey(addr, "addressCountry", "country")))
	case string:
		parts := strings.Split(addr, ",")
		if len(parts) < 3 {
			return
		}
		fragment.Set(models.FieldStreetAddress, strings.TrimSpace(parts[0]))
		fragment.Set(models.FieldCity, strings.TrimSpace(parts[1]))
		stateZip := strings.Fields(parts[2])
		if len(stateZip) >= 2 {
			fragment.Set(models.FieldState, stateZip[0])
			fragment.Set(models.FieldZipCode, strings.Join(stateZip[1:], " "))
		} else {
			fragment.Set(models.FieldState, strings.TrimSpace(parts[2]))
		}
	case []any:
		if len(addr) > 0 {
			mapAddress(addr[0], fragment)
		}
	}
}

func mapGeo(v any, fragment *models.Fragment) {
	geo, ok := v.(map[string]any)
	if !ok {
		return
	}
	if lat, ok := toFloat(firstKey(geo, "latitude", "lat")); ok {
		fragment.Set(models.FieldLatitude, lat)
	}
	if lng, ok := toFloat(firstKey(geo, "longitude", "lng", "long")); ok {
		fragment.Set(models.FieldLongitude, lng)
	}
}

func mapRating(v any, fragment *models.Fragment) {
	rating, ok := v.(map[string]any)
	if !ok {
		return
	}
	if value, ok := toFloat(firstKey(rating, "ratingValue", "rating")); ok {
		fragment.Set(models.FieldRating, value)
	}
	if count, ok := toFloat(firstKey(rating, "reviewCount", "count", "ratingCount")); ok {
		fragment.Set(models.FieldReviewCount, int(count))
	}
}

// mapHours 营业时间: 字符串、字符串列表或 OpeningHoursSpecification 列表
func mapHours(item map[string]any, fragment *models.Fragment) {
	switch hours := firstKey(item, "openingHours", "openingHoursSpecification").(type) {
	case string:
		fragment.Set(models.FieldHours, CleanText(hours))
	case map[string]any:
		if line := formatHoursSpec(hours); line != "" {
			fragment.Set(models.FieldHours, []string{line})
		}
	case []any:
		var lines []string
		for _, h := range hours {
			switch spec := h.(type) {
			case string:
				lines = append(lines, CleanText(spec))
			case map[string]any:
				if line := formatHoursSpec(spec); line != "" {
					lines = append(lines, line)
				}
			}
		}
		if len(lines) > 0 {
			fragment.Set(models.FieldHours, lines)
		}
	}
}

func formatHoursSpec(spec map[string]any) string {
	days := toStrings(spec["dayOfWeek"])
	for i, d := range days {
		if j := strings.LastIndex(d, "/"); j >= 0 {
			days[i] = d[j+1:]
		}
	}
	if len(days) == 0 {
		return ""
	}
	day := strings.Join(days, ", ")
	opens, closes := toText(spec["opens"]), toText(spec["closes"])
	switch {
	case opens != "" && closes != "":
		return fmt.Sprintf("%s: %s-%s", day, opens, closes)
	case opens != "":
		return fmt.Sprintf("%s: opens %s", day, opens)
	case closes != "":
		return fmt.Sprintf("%s: closes %s", day, closes)
	}
	return ""
}

func mapReviews(v any, fragment *models.Fragment) {
	list, ok := v.([]any)
	if !ok {
		if single, isMap := v.(map[string]any); isMap {
			list = []any{single}
		}
	}

	var reviews []map[string]any
	for _, r := range list {
		data, ok := r.(map[string]any)
		if !ok {
			continue
		}
		review := make(map[string]any)
		if author := toText(data["author"]); author != "" {
			review["author"] = author
		}
		if text := toText(firstKey(data, "reviewBody", "description")); text != "" {
			review["text"] = text
		}
		if rating, ok := data["reviewRating"].(map[string]any); ok {
			if value, ok := toFloat(rating["ratingValue"]); ok {
				review["rating"] = value
			}
		}
		if date := toText(data["datePublished"]); date != "" {
			review["date"] = date
		}
		if review["text"] != nil || review["author"] != nil {
			reviews = append(reviews, review)
		}
	}
	if len(reviews) > 0 {
		fragment.Set("reviews", reviews)
	}
}

func mapMenu(v any, fragment *models.Fragment) {
	if u := firstURL(v); u != "" {
		fragment.Set("menu_url", u)
	}
}
