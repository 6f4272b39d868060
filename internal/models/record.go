package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// 记录中的常用字段名
const (
	FieldName                  = "name"
	FieldPhone                 = "phone"
	FieldEmail                 = "email"
	FieldWebsite               = "website"
	FieldStreetAddress         = "street_address"
	FieldCity                  = "city"
	FieldState                 = "state"
	FieldZipCode               = "zip_code"
	FieldCountry               = "country"
	FieldLatitude              = "latitude"
	FieldLongitude             = "longitude"
	FieldCategories            = "categories"
	FieldCuisine               = "cuisine"
	FieldPriceRange            = "price_range"
	FieldPriceRangeDescription = "price_range_description"
	FieldRating                = "rating"
	FieldReviewCount           = "review_count"
	FieldHours                 = "hours"
	FieldPaymentMethods        = "payment_methods"
	FieldNeighborhoods         = "neighborhoods"
	FieldListingID             = "listing_id"

	// 溯源字段
	FieldListingURL      = "listing_url"
	FieldScrapedAt       = "scraped_at"
	FieldSource          = "source"
	FieldExtractionError = "extraction_error"
	FieldErrorKind       = "error_kind"
)

// Record 一个目标合并、规范化后的最终输出
// 构造后不可修改: 所有访问方法都返回副本
type Record struct {
	fields map[string]any
}

// NewRecord 用字段副本构造记录
func NewRecord(fields map[string]any) Record {
	copied, _ := cloneValue(fields).(map[string]any)
	if copied == nil {
		copied = make(map[string]any)
	}
	return Record{fields: copied}
}

// Get 读取字段
func (r Record) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// String 以字符串形式读取字段,不存在时返回空串
func (r Record) String(key string) string {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Has 字段存在且非空
func (r Record) Has(key string) bool {
	v, ok := r.fields[key]
	return ok && !IsEmptyValue(v)
}

// Len 字段数量
func (r Record) Len() int {
	return len(r.fields)
}

// Keys 返回排序后的字段名
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields 返回字段的深拷贝
func (r Record) Fields() map[string]any {
	copied, _ := cloneValue(r.fields).(map[string]any)
	if copied == nil {
		copied = make(map[string]any)
	}
	return copied
}

// Failed 记录是否带有提取错误
func (r Record) Failed() bool {
	return r.Has(FieldExtractionError)
}

// Equal 比较两条记录的字段是否完全一致
func (r Record) Equal(other Record) bool {
	return reflect.DeepEqual(r.fields, other.fields)
}

// MarshalJSON 实现json.Marshaler,不转义 &<>
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.fields); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON 实现json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.fields = fields
	return nil
}

// Strategy 提取策略
type Strategy string

const (
	StrategyStructured Strategy = "structured_data"  // 内嵌结构化数据
	StrategySecondary  Strategy = "secondary_detail" // "更多信息"区域
	StrategyDOM        Strategy = "dom_fallback"     // 直接DOM回退
	StrategyEnrichment Strategy = "enrichment"       // 社交链接、邮箱等补充字段
)

// Rank 策略优先级,数值越小优先级越高
func (s Strategy) Rank() int {
	switch s {
	case StrategyStructured:
		return 1
	case StrategySecondary:
		return 2
	case StrategyDOM:
		return 3
	case StrategyEnrichment:
		return 4
	default:
		return 99
	}
}

// Fragment 单个策略产出的部分字段
type Fragment struct {
	Strategy Strategy
	Rank     int
	Fields   map[string]any
}

// NewFragment 创建空片段
func NewFragment(strategy Strategy) *Fragment {
	return &Fragment{
		Strategy: strategy,
		Rank:     strategy.Rank(),
		Fields:   make(map[string]any),
	}
}

// Set 写入非空值,同一片段内先写入的值保留
func (f *Fragment) Set(key string, value any) {
	if IsEmptyValue(value) {
		return
	}
	if _, exists := f.Fields[key]; exists {
		return
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	f.Fields[key] = value
}

// Empty 片段是否没有任何字段
func (f *Fragment) Empty() bool {
	return f == nil || len(f.Fields) == 0
}

// IsEmptyValue 判断字段值是否为空
// nil、空白字符串、空列表和空对象都视为空
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case []map[string]any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i], _ = cloneValue(item).(map[string]any)
		}
		return out
	default:
		return val
	}
}
