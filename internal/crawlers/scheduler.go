package crawlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/furqank73/Web-Scraping/internal/models"
	"github.com/furqank73/Web-Scraping/internal/utils"
	"golang.org/x/sync/semaphore"
)

// TargetProcessor 在一个会话中处理单个目标
type TargetProcessor interface {
	Process(ctx context.Context, session Session, target models.TargetDescriptor) (models.Record, error)
	// Stub 目标处理失败时生成的占位记录
	Stub(target models.TargetDescriptor, cause error) models.Record
}

// RecordSink 接收调度器产出的记录
type RecordSink interface {
	Append(record models.Record) error
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	Concurrency   int
	BatchSize     int
	Shuffle       bool
	StartDelayMin time.Duration // 任务第一个动作前的随机延迟
	StartDelayMax time.Duration
	BetweenMin    time.Duration // 同一批次内目标之间的随机延迟
	BetweenMax    time.Duration
	TaskTimeout   time.Duration // 单个目标超时, 0表示不限制
}

// DefaultSchedulerConfig 返回默认调度配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Concurrency:   4,
		BatchSize:     1,
		Shuffle:       true,
		StartDelayMin: 1 * time.Second,
		StartDelayMax: 3 * time.Second,
		BetweenMin:    2 * time.Second,
		BetweenMax:    5 * time.Second,
		TaskTimeout:   3 * time.Minute,
	}
}

// SchedulerStats 调度统计
type SchedulerStats struct {
	Dispatched int64
	Succeeded  int64
	Stubbed    int64
	Panics     int64
}

// Scheduler 以最多K个并发任务处理目标,每个目标恰好产出一条记录
type Scheduler struct {
	cfg       SchedulerConfig
	provider  SessionProvider
	profiles  *ProfileGenerator
	processor TargetProcessor
	sink      RecordSink

	// OnRecord 每条记录写入后调用
	OnRecord func(target models.TargetDescriptor, record models.Record)

	sleep func(ctx context.Context, d time.Duration) error
	rngMu sync.Mutex
	rng   *rand.Rand

	dispatched atomic.Int64
	succeeded  atomic.Int64
	stubbed    atomic.Int64
	panics     atomic.Int64
}

// NewScheduler 创建调度器
func NewScheduler(cfg SchedulerConfig, provider SessionProvider, profiles *ProfileGenerator, processor TargetProcessor, sink RecordSink) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Scheduler{
		cfg:       cfg,
		provider:  provider,
		profiles:  profiles,
		processor: processor,
		sink:      sink,
		sleep:     sleepCtx,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run 处理全部目标并等待所有任务结束
// 单个任务的失败不会取消其他任务
func (s *Scheduler) Run(ctx context.Context, targets []models.TargetDescriptor) SchedulerStats {
	if len(targets) == 0 {
		return s.Stats()
	}

	batches := s.plan(targets)
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))

	utils.Logger.Info().
		Int("targets", len(targets)).
		Int("batches", len(batches)).
		Int("concurrency", s.cfg.Concurrency).
		Msg("🚀 开始提取详情页")

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(id int, batch []models.TargetDescriptor) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				for _, t := range batch {
					s.emit(t, s.stub(t, fmt.Errorf("等待并发许可失败: %w", err)))
				}
				return
			}
			defer sem.Release(1)

			s.runBatch(ctx, id, batch)
		}(i, batch)
	}
	wg.Wait()

	stats := s.Stats()
	utils.Logger.Info().
		Int64("succeeded", stats.Succeeded).
		Int64("stubbed", stats.Stubbed).
		Msg("详情页提取完成")
	return stats
}

// Stats 当前统计
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Dispatched: s.dispatched.Load(),
		Succeeded:  s.succeeded.Load(),
		Stubbed:    s.stubbed.Load(),
		Panics:     s.panics.Load(),
	}
}

// plan 打乱并按批大小分组
func (s *Scheduler) plan(targets []models.TargetDescriptor) [][]models.TargetDescriptor {
	ordered := make([]models.TargetDescriptor, len(targets))
	copy(ordered, targets)
	if s.cfg.Shuffle {
		s.rngMu.Lock()
		s.rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
		s.rngMu.Unlock()
	}

	var batches [][]models.TargetDescriptor
	for start := 0; start < len(ordered); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ordered))
		batches = append(batches, ordered[start:end])
	}
	return batches
}

// runBatch 一个批次使用一个会话,顺序处理其中的目标
// 会话在许可释放之前关闭
func (s *Scheduler) runBatch(ctx context.Context, id int, batch []models.TargetDescriptor) {
	emitted := 0
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			utils.Logger.Error().Int("batch", id).Interface("panic", r).Msg("批次执行时发生panic")
			for _, t := range batch[emitted:] {
				s.emit(t, s.stub(t, fmt.Errorf("批次执行异常: %v", r)))
			}
		}
	}()

	_ = s.sleep(ctx, s.between(s.cfg.StartDelayMin, s.cfg.StartDelayMax))

	profile := s.profiles.Generate()
	session, err := s.provider.AcquireSession(ctx, profile)
	if err != nil {
		utils.Logger.Error().Err(err).Int("batch", id).Msg("创建会话失败")
		for _, t := range batch {
			emitted++
			s.emit(t, s.stub(t, fmt.Errorf("创建会话失败: %w", err)))
		}
		return
	}
	defer func() {
		if err := s.provider.ReleaseSession(session); err != nil {
			utils.Warnf("释放会话失败: %v", err)
		}
	}()

	for i, t := range batch {
		if i > 0 {
			_ = s.sleep(ctx, s.between(s.cfg.BetweenMin, s.cfg.BetweenMax))
		}
		record := s.processOne(ctx, session, t)
		emitted++
		s.emit(t, record)
	}
}

// processOne 处理单个目标,错误和panic都转为占位记录
func (s *Scheduler) processOne(ctx context.Context, session Session, target models.TargetDescriptor) (record models.Record) {
	s.dispatched.Add(1)
	log := utils.Logger.With().Str("url", target.URL).Str("session", session.ID()).Logger()

	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			log.Error().Interface("panic", r).Msg("提取时发生panic")
			record = s.stub(target, fmt.Errorf("提取异常: %v", r))
		}
	}()

	record, err := s.processor.Process(ctx, session, target)
	if err != nil {
		var blocked *models.BlockedError
		if errors.As(err, &blocked) {
			log.Warn().Int("attempts", blocked.Attempts).Msg("目标被拦截")
		} else {
			log.Warn().Err(err).Msg("目标处理失败")
		}
		return s.stub(target, err)
	}

	if record.Failed() {
		s.stubbed.Add(1)
	} else {
		s.succeeded.Add(1)
	}
	log.Debug().Str("name", record.String(models.FieldName)).Msg("目标处理完成")
	return record
}

func (s *Scheduler) stub(target models.TargetDescriptor, cause error) models.Record {
	s.stubbed.Add(1)
	return s.processor.Stub(target, cause)
}

// emit 写入记录并回调 OnRecord
// 调用前目标已计为完成,这里的panic只记录日志,不会再为该目标生成占位记录
func (s *Scheduler) emit(target models.TargetDescriptor, record models.Record) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			utils.Logger.Error().Str("url", target.URL).Interface("panic", r).Msg("写入记录时发生panic")
		}
	}()

	if err := s.sink.Append(record); err != nil {
		utils.Logger.Error().Err(err).Str("url", target.URL).Msg("写入记录失败")
		return
	}
	if s.OnRecord != nil {
		s.OnRecord(target, record)
	}
}

func (s *Scheduler) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)))
}
