package crawlers

import (
	"sync"

	"github.com/furqank73/Web-Scraping/internal/models"
)

// TargetSet 按规范化URL去重的目标集合,保持插入顺序
type TargetSet struct {
	mu      sync.RWMutex
	seen    map[string]bool
	targets []models.TargetDescriptor
}

// NewTargetSet 创建目标集合
func NewTargetSet() *TargetSet {
	return &TargetSet{seen: make(map[string]bool)}
}

// Add 加入目标,URL已存在时返回false
func (s *TargetSet) Add(t models.TargetDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[t.URL] {
		return false
	}
	s.seen[t.URL] = true
	s.targets = append(s.targets, t)
	return true
}

// AddAll 加入多个目标,返回新加入的部分
func (s *TargetSet) AddAll(targets []models.TargetDescriptor) []models.TargetDescriptor {
	var added []models.TargetDescriptor
	for _, t := range targets {
		if s.Add(t) {
			added = append(added, t)
		}
	}
	return added
}

// Contains 判断URL是否已存在
func (s *TargetSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[url]
}

// Len 目标数量
func (s *TargetSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// Targets 按插入顺序返回全部目标的副本
func (s *TargetSet) Targets() []models.TargetDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TargetDescriptor, len(s.targets))
	copy(out, s.targets)
	return out
}
