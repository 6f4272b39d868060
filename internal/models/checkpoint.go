package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint 记录发现阶段的结果和已完成的目标
// 恢复运行时跳过已访问的列表页和已输出的目标
type Checkpoint struct {
	TaskID   string `json:"task_id"`
	Site     string `json:"site"`
	StartURL string `json:"start_url"`

	PagesVisited int                `json:"pages_visited"`
	Targets      []TargetDescriptor `json:"targets"`
	Completed    []string           `json:"completed"` // 已输出记录的目标URL,含占位记录

	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Config    HarvestConfig `json:"config"`
}

// CheckpointFilename 站点名加查询标识
func CheckpointFilename(site, query string) string {
	return fmt.Sprintf("checkpoint_%s_%s.json", site, query)
}

// Pending 未完成的目标,保持发现顺序
func (c *Checkpoint) Pending() []TargetDescriptor {
	done := make(map[string]bool, len(c.Completed))
	for _, u := range c.Completed {
		done[u] = true
	}

	pending := make([]TargetDescriptor, 0, len(c.Targets))
	for _, t := range c.Targets {
		if !done[t.URL] {
			pending = append(pending, t)
		}
	}
	return pending
}

// SaveToFile 先写临时文件再改名,进程中断时不会留下半个文件
func (c *Checkpoint) SaveToFile(path string) error {
	c.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadCheckpointFromFile 读取检查点,文件不存在时返回 os.ErrNotExist
func LoadCheckpointFromFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("解析检查点 %s 失败: %w", path, err)
	}
	return &cp, nil
}
