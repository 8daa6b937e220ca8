package metrics

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Sample is one reading of host resource usage, in percent.
type Sample struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
}

// SystemSampler supplies resource readings to the health checker. A
// failing sampler degrades to "no resource alerts", never to a false
// alert.
type SystemSampler interface {
	Sample() (Sample, error)
}

// ProcSampler reads /proc/stat and /proc/meminfo. CPU usage is the
// busy share of the interval since the previous call, so the first
// reading after construction covers startup.
type ProcSampler struct {
	mu        sync.Mutex
	lastBusy  uint64
	lastTotal uint64
}

func NewProcSampler() *ProcSampler {
	s := &ProcSampler{}
	// Prime the CPU counters so the first Sample has a baseline.
	s.lastBusy, s.lastTotal, _ = readCPUTotals()
	return s
}

func (s *ProcSampler) Sample() (Sample, error) {
	busy, total, err := readCPUTotals()
	if err != nil {
		return Sample{}, fmt.Errorf("read cpu: %w", err)
	}

	s.mu.Lock()
	var cpu float64
	if total > s.lastTotal {
		cpu = 100 * float64(busy-s.lastBusy) / float64(total-s.lastTotal)
	}
	s.lastBusy, s.lastTotal = busy, total
	s.mu.Unlock()

	mem, err := readMemoryPercent()
	if err != nil {
		return Sample{}, fmt.Errorf("read memory: %w", err)
	}

	return Sample{CPUPercent: cpu, MemoryPercent: mem}, nil
}

func readCPUTotals() (busy, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}

	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}

	var vals []uint64
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse /proc/stat: %w", err)
		}
		vals = append(vals, v)
	}

	for _, v := range vals {
		total += v
	}
	// idle + iowait are the non-busy columns
	idle := vals[3]
	if len(vals) > 4 {
		idle += vals[4]
	}
	return total - idle, total, nil
}

func readMemoryPercent() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}

	var memTotal, memAvail uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			memTotal, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			memAvail, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	if memTotal == 0 {
		return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
	}
	return 100 * float64(memTotal-memAvail) / float64(memTotal), nil
}
