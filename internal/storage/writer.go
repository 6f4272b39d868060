package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// CanonicalColumns CSV中固定在前面的列,只输出数据中出现过的
var CanonicalColumns = []string{
	models.FieldName,
	models.FieldPhone,
	models.FieldEmail,
	models.FieldWebsite,
	models.FieldStreetAddress,
	models.FieldCity,
	models.FieldState,
	models.FieldZipCode,
	models.FieldCountry,
	models.FieldLatitude,
	models.FieldLongitude,
	models.FieldCategories,
	models.FieldCuisine,
	models.FieldPriceRange,
	models.FieldRating,
	models.FieldReviewCount,
	models.FieldHours,
	models.FieldPaymentMethods,
	models.FieldNeighborhoods,
	models.FieldListingURL,
	models.FieldScrapedAt,
}

// OutputBaseName <site>_<YYYYmmdd_HHMMSS>
func OutputBaseName(site string, t time.Time) string {
	return fmt.Sprintf("%s_%s", utils.SafeFileName(site, 50), utils.Timestamp(t))
}

// WriteJSON 写入格式化的JSON数组,不转义非ASCII字符和 &<>
func WriteJSON(path string, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// Columns 固定列在前,其余字段按字典序
func Columns(records []models.Record) []string {
	present := make(map[string]bool)
	for _, r := range records {
		for _, k := range r.Keys() {
			present[k] = true
		}
	}

	columns := make([]string, 0, len(present))
	for _, c := range CanonicalColumns {
		if present[c] {
			columns = append(columns, c)
			delete(present, c)
		}
	}
	extras := make([]string, 0, len(present))
	for k := range present {
		extras = append(extras, k)
	}
	sort.Strings(extras)
	return append(columns, extras...)
}

// WriteCSV 写入CSV,缺失字段为空串
func WriteCSV(path string, records []models.Record) error {
	columns := Columns(records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			v, _ := r.Get(col)
			row[i] = CellValue(v)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("写入CSV失败: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// CellValue 单元格文本: 字符串列表用 "; " 连接,其他列表和对象输出JSON
func CellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, "; ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return marshalCell(val)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "; ")
	case map[string]any, []map[string]any:
		return marshalCell(val)
	default:
		return fmt.Sprint(val)
	}
}

func marshalCell(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败 %s: %w", path, err)
	}
	return nil
}
