package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/furqank73/Web-Scraping/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// ResourceMonitor 根据可用内存和CPU负载限制同时打开的会话数
type ResourceMonitor struct {
	config ResourceMonitorConfig

	mu        sync.RWMutex
	available uint64 // 系统可用内存(字节)
	total     uint64
	cpuUsage  float64
	sampledAt time.Time
	monitors  atomic.Int32

	// 采样函数,测试中替换
	readMemory func() (total, available uint64, err error)
	readCPU    func() (float64, error)
}

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 为系统保留的内存(字节)
	SessionMemoryUsage  int64 // 单个浏览器会话的平均内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 时不检查
	MaxSessionsLimit    int   // 绝对上限, 0表示不限制
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 1024 * mb,
		SessionMemoryUsage:  250 * mb,
		CPULoadThreshold:    85,
	}
}

// MemoryStatus 内存状态
type MemoryStatus struct {
	TotalMemory     uint64
	AvailableMemory uint64
	SafetyReserve   int64
	CPUUsage        float64
	MemoryPressure  string // normal, warning, critical
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.SessionMemoryUsage <= 0 {
		config.SessionMemoryUsage = 250 * mb
	}
	rm := &ResourceMonitor{
		config:     config,
		readMemory: systemMemory,
		readCPU:    systemCPU,
	}
	rm.Sample()
	return rm
}

func systemMemory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

func systemCPU() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// Sample 读取一次内存和CPU
// 读取失败时按4GB可用内存计算
func (rm *ResourceMonitor) Sample() {
	total, available, err := rm.readMemory()
	if err != nil {
		utils.Logger.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		total, available = 4096*mb, 4096*mb
	}
	usage, err := rm.readCPU()
	if err != nil {
		utils.Logger.Debug().Err(err).Msg("获取CPU使用率失败")
	}

	rm.mu.Lock()
	rm.total, rm.available, rm.cpuUsage = total, available, usage
	rm.sampledAt = time.Now()
	rm.mu.Unlock()
}

// StartMonitoring 周期采样,内存压力变化时记录日志
// 返回的 stop 停止采样并等待后台goroutine退出,ctx取消时也会停止
func (rm *ResourceMonitor) StartMonitoring(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	rm.monitors.Add(1)

	go func() {
		defer close(done)
		defer rm.monitors.Add(-1)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := rm.GetMemoryStatus().MemoryPressure
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.Sample()
				status := rm.GetMemoryStatus()
				if status.MemoryPressure != last {
					utils.Logger.Warn().
						Str("pressure", status.MemoryPressure).
						Uint64("available_mb", status.AvailableMemory/mb).
						Float64("cpu", status.CPUUsage).
						Msg("系统资源状态变化")
					last = status.MemoryPressure
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Monitoring 是否还有采样goroutine在运行
func (rm *ResourceMonitor) Monitoring() bool {
	return rm.monitors.Load() > 0
}

// CalculateMaxSessions 返回不超过requested的会话上限,至少为1
func (rm *ResourceMonitor) CalculateMaxSessions(requested int) int {
	rm.mu.RLock()
	available := int64(rm.available)
	rm.mu.RUnlock()

	byMemory := int((available - rm.config.SafetyReserveMemory) / rm.config.SessionMemoryUsage)
	byCPU := runtime.NumCPU() * 2

	result := min(requested, byMemory, byCPU)
	if rm.config.MaxSessionsLimit > 0 {
		result = min(result, rm.config.MaxSessionsLimit)
	}
	if result < 1 {
		result = 1
	}
	if result < requested {
		utils.Logger.Warn().
			Int("requested", requested).
			Int("allowed", result).
			Int64("available_mb", available/mb).
			Msg("系统资源不足,降低并发数")
	}
	return result
}

// CheckResourceAvailability 判断当前是否适合再打开一个会话
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	available := int64(rm.available)
	usage := rm.cpuUsage
	rm.mu.RUnlock()

	if available-rm.config.SafetyReserveMemory < rm.config.SessionMemoryUsage {
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/mb)
	}
	if rm.config.CPULoadThreshold < 200 && usage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}
	return true, ""
}

// GetMemoryStatus 当前资源状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	pressure := "normal"
	free := int64(rm.available) - rm.config.SafetyReserveMemory
	switch {
	case free < rm.config.SessionMemoryUsage:
		pressure = "critical"
	case free < 2*rm.config.SessionMemoryUsage:
		pressure = "warning"
	}

	return MemoryStatus{
		TotalMemory:     rm.total,
		AvailableMemory: rm.available,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		CPUUsage:        rm.cpuUsage,
		MemoryPressure:  pressure,
	}
}
