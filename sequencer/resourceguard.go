package sequencer

import (
	"runtime"
	"sync"
	"time"
)

// ResourceSampler reports current CPU utilization (0-100) and resident
// memory in bytes. The default sampler reads Go runtime memory stats;
// a host wanting whole-process CPU accounting can supply its own.
type ResourceSampler interface {
	Sample() (cpuPct float64, rssBytes int64)
}

// runtimeSampler reports the total memory the Go runtime has obtained
// from the OS (MemStats.Sys) as a stand-in for memory pressure, and a
// constant CPU reading of zero — a process
// embedding the sequencer inside a larger control server is expected to
// supply a ResourceSampler backed by real OS accounting.
type runtimeSampler struct{}

func (runtimeSampler) Sample() (float64, int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return 0, int64(mem.Sys)
}

// ResourceGuard admits a task dispatch only when CPU and memory are
// both under their configured ceilings. Samples are cached for
// SampleTTL to avoid hammering the OS on every dispatch tick.
type ResourceGuard struct {
	mu sync.Mutex

	sampler    ResourceSampler
	cpuCeiling float64
	rssCeiling int64
	sampleTTL  time.Duration

	lastSample   time.Time
	lastCPU      float64
	lastRSS      int64
}

// NewResourceGuard creates a ResourceGuard. rssCeiling of 0 disables
// the memory check. A nil sampler uses the Go runtime's own memory
// stats.
func NewResourceGuard(cpuCeiling float64, rssCeiling int64, sampleTTL time.Duration, sampler ResourceSampler) *ResourceGuard {
	if sampler == nil {
		sampler = runtimeSampler{}
	}
	if sampleTTL <= 0 {
		sampleTTL = 200 * time.Millisecond
	}
	return &ResourceGuard{
		sampler:    sampler,
		cpuCeiling: cpuCeiling,
		rssCeiling: rssCeiling,
		sampleTTL:  sampleTTL,
	}
}

// Admit reports whether a new task dispatch should be allowed right
// now: sampledCpuPct < cpuCeiling AND (rssCeiling == 0 OR rssBytes <
// rssCeiling).
func (g *ResourceGuard) Admit() bool {
	cpu, rss := g.sample()
	if cpu >= g.cpuCeiling {
		return false
	}
	if g.rssCeiling > 0 && rss >= g.rssCeiling {
		return false
	}
	return true
}

func (g *ResourceGuard) sample() (float64, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastSample) < g.sampleTTL {
		return g.lastCPU, g.lastRSS
	}
	cpu, rss := g.sampler.Sample()
	g.lastSample = time.Now()
	g.lastCPU = cpu
	g.lastRSS = rss
	return cpu, rss
}
