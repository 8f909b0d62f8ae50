package diagnostics

import (
	"os"
	"strings"
	"testing"
)

func TestCollector_Collect(t *testing.T) {
	t.Parallel()
	c := NewCollector(t.TempDir())
	calls := 0
	c.queryGPUs = func() []GPUInfo {
		calls++
		return []GPUInfo{{Name: "Test GPU"}}
	}

	first := c.Collect()
	second := c.Collect()

	if first.Timestamp.IsZero() || first.GOOS == "" {
		t.Error("expected timestamp and platform")
	}
	if first.Process.PID != os.Getpid() {
		t.Errorf("Process.PID = %d", first.Process.PID)
	}
	if first.Process.Goroutines <= 0 {
		t.Errorf("Process.Goroutines = %d", first.Process.Goroutines)
	}
	if first.MemPercent < 0 || first.MemPercent > 100 {
		t.Errorf("MemPercent = %f", first.MemPercent)
	}
	if second.CPUPercent < 0 || second.CPUPercent > 100 {
		t.Errorf("CPUPercent = %f", second.CPUPercent)
	}
	if calls != 1 {
		t.Errorf("GPU query ran %d times, want 1", calls)
	}
	if len(second.GPUs) != 1 || second.GPUs[0].Name != "Test GPU" {
		t.Errorf("GPUs = %+v", second.GPUs)
	}

	// Snapshots must not share the cached slice.
	second.GPUs[0].Name = "mutated"
	if c.Collect().GPUs[0].Name != "Test GPU" {
		t.Error("snapshot mutation leaked into collector cache")
	}
}

func TestNewCollector_DefaultDiskPath(t *testing.T) {
	t.Parallel()
	if got := NewCollector("").diskPath; got != rootDiskPath() {
		t.Errorf("diskPath = %q, want %q", got, rootDiskPath())
	}
}

func TestSnapshot_Warnings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		snap Snapshot
		want []string
	}{
		{
			name: "healthy",
			snap: Snapshot{MemPercent: 40, DiskPercent: 50, CPUThreads: 8, LoadAvg1: 2},
		},
		{
			name: "memory",
			snap: Snapshot{MemPercent: 93.5},
			want: []string{"memory usage at 93.5%"},
		},
		{
			name: "disk",
			snap: Snapshot{DiskPercent: 99, DiskPath: "/"},
			want: []string{"disk usage at 99.0% on /"},
		},
		{
			name: "load",
			snap: Snapshot{CPUThreads: 2, LoadAvg1: 5},
			want: []string{"load average 5.00 exceeds twice the thread count"},
		},
		{
			name: "unknown thread count ignores load",
			snap: Snapshot{LoadAvg1: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.snap.Warnings()
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Warnings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNvidiaCSV(t *testing.T) {
	t.Parallel()
	out := "NVIDIA GeForce RTX 4090, 24564, 1022\n\nTesla T4, [N/A], 12\nbroken line\n"

	gpus := parseNvidiaCSV(out)
	if len(gpus) != 2 {
		t.Fatalf("parsed %d GPUs, want 2: %+v", len(gpus), gpus)
	}
	if gpus[0].Name != "NVIDIA GeForce RTX 4090" || gpus[0].MemTotalMB != 24564 || gpus[0].MemUsedMB != 1022 || !gpus[0].MemValid {
		t.Errorf("gpus[0] = %+v", gpus[0])
	}
	if gpus[1].Name != "Tesla T4" || gpus[1].MemValid {
		t.Errorf("gpus[1] = %+v", gpus[1])
	}
}

func TestParseNvidiaCSV_Empty(t *testing.T) {
	t.Parallel()
	if gpus := parseNvidiaCSV(""); len(gpus) != 0 {
		t.Errorf("parseNvidiaCSV(\"\") = %+v", gpus)
	}
}
