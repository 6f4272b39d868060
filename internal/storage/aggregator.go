package storage

import (
	"sync"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
)

// Sink 逐条接收聚合器中新增的记录
type Sink interface {
	Write(record models.Record) error
}

// Summary 结果统计
type Summary struct {
	Total     int `json:"total"`
	WithPhone int `json:"with_phone"`
	WithError int `json:"with_error"`
}

// Succeeded 没有提取错误的记录数
func (s Summary) Succeeded() int {
	return s.Total - s.WithError
}

// Aggregator 只追加的结果集,多个任务并发写入
// Drain 之后不再接受新记录
type Aggregator struct {
	mu      sync.Mutex
	records []models.Record
	summary Summary
	drained bool
	sinks   []Sink
}

// NewAggregator 创建结果集,sinks 按顺序收到每条新记录
func NewAggregator(sinks ...Sink) *Aggregator {
	return &Aggregator{sinks: sinks}
}

// AddSink 注册一个流式接收者
func (a *Aggregator) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Append 追加一条记录
// 接收者写入失败只记录日志,记录仍然保留
func (a *Aggregator) Append(record models.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		return models.ErrAggregatorDrained
	}
	a.records = append(a.records, record)
	a.summary.Total++
	if record.Has(models.FieldPhone) {
		a.summary.WithPhone++
	}
	if record.Failed() {
		a.summary.WithError++
	}

	for _, s := range a.sinks {
		if err := s.Write(record); err != nil {
			utils.Logger.Warn().Err(err).Str("url", record.String(models.FieldListingURL)).Msg("写入记录接收者失败")
		}
	}
	return nil
}

// Drain 取出全部记录,只能调用一次,之后返回nil
func (a *Aggregator) Drain() []models.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		return nil
	}
	a.drained = true
	out := a.records
	a.records = nil
	return out
}

// Len 当前记录数
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary.Total
}

// Summary 当前统计
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary
}
