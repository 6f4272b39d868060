package extract

import (
	"sort"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// Merge 按策略优先级合并片段: 每个字段由第一个给出非空值的片段决定,后面的片段不会覆盖
func Merge(fragments ...*models.Fragment) map[string]any {
	ordered := make([]*models.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f != nil {
			ordered = append(ordered, f)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	merged := make(map[string]any)
	for _, f := range ordered {
		for key, value := range f.Fields {
			if models.IsEmptyValue(value) {
				continue
			}
			if _, exists := merged[key]; exists {
				continue
			}
			merged[key] = value
		}
	}
	return merged
}
