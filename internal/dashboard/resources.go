package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"opsflow/logger"
)

// resourceSnapshot captures a single sample of host level resource
// utilisation, shown alongside the trading data so an operator can tell a
// starved host from a stalled engine.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSnapshot
	limit    int
	interval time.Duration
	diskPath string

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 120
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if !s.running.Swap(false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *resourceSampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *resourceSampler) sample(ctx context.Context) {
	snap := resourceSnapshot{Timestamp: time.Now()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Debug("cpu sample failed")
	} else if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Debug("memory sample failed")
	} else if vm != nil {
		snap.MemoryUsed = vm.Used
		snap.MemoryTotal = vm.Total
		snap.MemoryPct = vm.UsedPercent
	}

	if du, err := disk.UsageWithContext(ctx, s.diskPath); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Debug("disk sample failed")
	} else if du != nil {
		snap.DiskUsed = du.Used
		snap.DiskTotal = du.Total
		snap.DiskPct = du.UsedPercent
	}

	s.mu.Lock()
	s.items = append(s.items, snap)
	if len(s.items) > s.limit {
		s.items = s.items[len(s.items)-s.limit:]
	}
	s.mu.Unlock()
}

func (s *resourceSampler) snapshots() []resourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSnapshot, len(s.items))
	copy(out, s.items)
	return out
}
