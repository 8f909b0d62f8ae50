package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Thresholds above which Warnings reports a host resource as constrained.
const (
	MemWarnPercent  = 90.0
	DiskWarnPercent = 95.0
)

// GPUInfo holds GPU information (best-effort).
type GPUInfo struct {
	Name       string  `json:"name"`
	MemTotalMB float64 `json:"mem_total_mb,omitempty"`
	MemUsedMB  float64 `json:"mem_used_mb,omitempty"`
	MemValid   bool    `json:"mem_valid"`
}

// ProcessInfo captures the Go runtime state of this process.
type ProcessInfo struct {
	PID         int           `json:"pid"`
	Goroutines  int           `json:"goroutines"`
	HeapAllocMB float64       `json:"heap_alloc_mb"`
	NumGC       uint32        `json:"num_gc"`
	Uptime      time.Duration `json:"uptime"`
}

// Snapshot holds host and process resource usage at one instant.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	GOOS      string    `json:"goos"`
	GOARCH    string    `json:"goarch"`

	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	// Disk (in GB) for the filesystem holding the working directory
	DiskPath    string  `json:"disk_path"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1 float64 `json:"load_avg_1"`
	LoadAvg5 float64 `json:"load_avg_5"`

	GPUs    []GPUInfo   `json:"gpus,omitempty"`
	Process ProcessInfo `json:"process"`
}

// Warnings lists resource conditions likely to slow down or break a run
// against a local model backend.
func (s Snapshot) Warnings() []string {
	var warnings []string
	if s.MemPercent >= MemWarnPercent {
		warnings = append(warnings, fmt.Sprintf("memory usage at %.1f%%", s.MemPercent))
	}
	if s.DiskPercent >= DiskWarnPercent {
		warnings = append(warnings, fmt.Sprintf("disk usage at %.1f%% on %s", s.DiskPercent, s.DiskPath))
	}
	if s.CPUThreads > 0 && s.LoadAvg1 > float64(s.CPUThreads)*2 {
		warnings = append(warnings, fmt.Sprintf("load average %.2f exceeds twice the thread count", s.LoadAvg1))
	}
	return warnings
}

// Collector gathers host snapshots. Hardware descriptions are cached after
// the first call; CPU usage is computed from the delta between calls.
type Collector struct {
	mu        sync.Mutex
	started   time.Time
	diskPath  string
	queryGPUs func() []GPUInfo

	lastCPUTotal float64
	lastCPUIdle  float64

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
	gpus          []GPUInfo
}

// NewCollector creates a collector reporting disk usage for diskPath.
// An empty path selects the filesystem root.
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &Collector{
		started:   time.Now(),
		diskPath:  diskPath,
		queryGPUs: queryGPUInfo,
	}
}

// Collect gathers current statistics. Sources that fail leave their fields zero.
func (c *Collector) Collect() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Timestamp: time.Now().UTC(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		DiskPath:  c.diskPath,
	}

	c.collectHardwareInfo(&s)
	c.collectMemoryInfo(&s)
	c.collectCPUInfo(&s)
	c.collectDiskInfo(&s)
	c.collectLoadAvg(&s)
	s.Process = c.processInfo()
	return s
}

func (c *Collector) collectHardwareInfo(s *Snapshot) {
	if !c.infoCollected {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		if c.queryGPUs != nil {
			c.gpus = c.queryGPUs()
		}
		c.infoCollected = true
	}
	s.CPUModel = c.cpuModel
	s.CPUCores = c.cpuCores
	s.CPUThreads = c.cpuThreads
	s.GPUs = append([]GPUInfo(nil), c.gpus...)
}

func (c *Collector) collectMemoryInfo(s *Snapshot) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	s.MemTotalMB = float64(vm.Total) / 1024 / 1024
	s.MemUsedMB = float64(vm.Used) / 1024 / 1024
	s.MemPercent = vm.UsedPercent
}

func (c *Collector) collectCPUInfo(s *Snapshot) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idle - c.lastCPUIdle
		if totalDelta > 0 {
			s.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func (c *Collector) collectDiskInfo(s *Snapshot) {
	usage, err := disk.Usage(c.diskPath)
	if err != nil {
		return
	}
	s.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	s.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	s.DiskPercent = usage.UsedPercent
}

func (c *Collector) collectLoadAvg(s *Snapshot) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	s.LoadAvg1 = avg.Load1
	s.LoadAvg5 = avg.Load5
}

func (c *Collector) processInfo() ProcessInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ProcessInfo{
		PID:         os.Getpid(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		NumGC:       ms.NumGC,
		Uptime:      time.Since(c.started),
	}
}

func queryGPUInfo() []GPUInfo {
	if gpus := queryNvidiaSMI(); len(gpus) > 0 {
		return gpus
	}
	return queryGhwGPU()
}

func queryNvidiaSMI() []GPUInfo {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name,memory.total,memory.used", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseNvidiaCSV(string(out))
}

// parseNvidiaCSV parses "name, total, used" lines as printed by nvidia-smi.
func parseNvidiaCSV(out string) []GPUInfo {
	var gpus []GPUInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		total, totalOK := parseFloatField(fields[1])
		used, usedOK := parseFloatField(fields[2])
		gpus = append(gpus, GPUInfo{
			Name:       strings.TrimSpace(fields[0]),
			MemTotalMB: total,
			MemUsedMB:  used,
			MemValid:   totalOK && usedOK,
		})
	}
	return gpus
}

func queryGhwGPU() []GPUInfo {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]GPUInfo, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, GPUInfo{Name: name})
	}
	return gpus
}

func parseFloatField(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
