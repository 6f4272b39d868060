package crawlers

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func testMonitor(available uint64, cpuUsage float64) *ResourceMonitor {
	rm := &ResourceMonitor{
		config: ResourceMonitorConfig{
			SafetyReserveMemory: 1024 * mb,
			SessionMemoryUsage:  256 * mb,
			CPULoadThreshold:    80,
		},
		readMemory: func() (uint64, uint64, error) { return 16384 * mb, available, nil },
		readCPU:    func() (float64, error) { return cpuUsage, nil },
	}
	rm.Sample()
	return rm
}

func TestCalculateMaxSessions(t *testing.T) {
	cpuCap := runtime.NumCPU() * 2
	tests := []struct {
		name      string
		available uint64
		requested int
		want      int
	}{
		{"内存充足", 16384 * mb, 2, min(2, cpuCap)},
		{"内存限制", 2048 * mb, 10, min(4, cpuCap)},
		{"内存不足时至少1个", 512 * mb, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testMonitor(tt.available, 10).CalculateMaxSessions(tt.requested); got != tt.want {
				t.Errorf("CalculateMaxSessions(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestCalculateMaxSessionsLimit(t *testing.T) {
	rm := testMonitor(65536*mb, 10)
	rm.config.MaxSessionsLimit = 1
	if got := rm.CalculateMaxSessions(8); got != 1 {
		t.Errorf("CalculateMaxSessions(8) = %d, want 1", got)
	}
}

func TestCheckResourceAvailability(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		cpu       float64
		want      bool
		pressure  string
	}{
		{"正常", 8192 * mb, 20, true, "normal"},
		{"内存偏紧", 1024*mb + 300*mb, 20, true, "warning"},
		{"内存不足", 1100 * mb, 20, false, "critical"},
		{"CPU过高", 8192 * mb, 95, false, "normal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := testMonitor(tt.available, tt.cpu)
			ok, reason := rm.CheckResourceAvailability()
			if ok != tt.want {
				t.Errorf("CheckResourceAvailability() = %v (%s), want %v", ok, reason, tt.want)
			}
			if got := rm.GetMemoryStatus().MemoryPressure; got != tt.pressure {
				t.Errorf("MemoryPressure = %q, want %q", got, tt.pressure)
			}
		})
	}
}

func TestSampleFallsBackOnError(t *testing.T) {
	rm := testMonitor(0, 0)
	rm.readMemory = func() (uint64, uint64, error) { return 0, 0, errors.New("no /proc") }
	rm.Sample()
	if got := rm.GetMemoryStatus().AvailableMemory; got != 4096*mb {
		t.Errorf("AvailableMemory = %d, want %d", got, 4096*mb)
	}
}

func TestStartMonitoringStop(t *testing.T) {
	rm := testMonitor(16384*mb, 10)

	stop := rm.StartMonitoring(context.Background(), time.Millisecond)
	if !rm.Monitoring() {
		t.Fatal("Monitoring() = false, want true")
	}
	time.Sleep(5 * time.Millisecond)
	stop()
	if rm.Monitoring() {
		t.Error("stop() 返回后采样goroutine仍在运行")
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop = rm.StartMonitoring(ctx, time.Hour)
	cancel()
	stop()
	if rm.Monitoring() {
		t.Error("ctx取消后采样goroutine仍在运行")
	}
}
