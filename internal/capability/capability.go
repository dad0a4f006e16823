// Package capability describes what an encoder generation supports so the
// orchestrator can pick a strategy up front instead of branching on the
// generation inside the algorithms.
package capability

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/cpu"

	"github.com/five82/brcplan/internal/partition"
)

// Sentinel errors.
var (
	// ErrUnknownProfile indicates a profile name that is not registered.
	ErrUnknownProfile = errors.New("unknown capability profile")

	// ErrUnsupported indicates a stream setting the profile cannot execute.
	ErrUnsupported = errors.New("unsupported by profile")
)

// Profile is the feature set of one encoder generation.
type Profile struct {
	Name          string `json:"name" yaml:"name"`
	MaxColors     int    `json:"max_colors" yaml:"max_colors"` // concurrent wavefront colors the scheduler tracks
	Zigzag        bool   `json:"zigzag" yaml:"zigzag"`
	ParallelBRC   bool   `json:"parallel_brc" yaml:"parallel_brc"`
	RegionControl bool   `json:"region_control" yaml:"region_control"`
	MaxSlices     int    `json:"max_slices" yaml:"max_slices"`
	LCUSize       int    `json:"lcu_size" yaml:"lcu_size"` // pixels
}

// Known profiles.
var (
	Gen9 = Profile{
		Name:      "gen9",
		MaxColors: 16,
		MaxSlices: 16,
		LCUSize:   32,
	}
	Gen12 = Profile{
		Name:          "gen12",
		MaxColors:     16,
		Zigzag:        true,
		ParallelBRC:   true,
		RegionControl: true,
		MaxSlices:     600,
		LCUSize:       64,
	}
)

var profiles = map[string]Profile{
	Gen9.Name:  Gen9,
	Gen12.Name: Gen12,
}

// Default is the profile used when none is configured.
var Default = Gen12

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownProfile, name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names returns the registered profile names in order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Request is the subset of stream settings a profile constrains.
type Request struct {
	Walk          partition.Walk
	ParallelBRC   bool
	RegionControl bool
	Slices        int
}

// Check rejects settings the profile cannot execute.
func (p Profile) Check(req Request) error {
	switch {
	case req.Walk == partition.WalkZigzag && !p.Zigzag:
		return fmt.Errorf("%w: %s has no zigzag walk", ErrUnsupported, p.Name)
	case req.ParallelBRC && !p.ParallelBRC:
		return fmt.Errorf("%w: %s has no parallel BRC", ErrUnsupported, p.Name)
	case req.RegionControl && !p.RegionControl:
		return fmt.Errorf("%w: %s has no region-level rate control", ErrUnsupported, p.Name)
	case p.MaxSlices > 0 && req.Slices > p.MaxSlices:
		return fmt.Errorf("%w: %d slices, %s allows %d", ErrUnsupported, req.Slices, p.Name, p.MaxSlices)
	}
	return nil
}

// PreferredWalk returns the zigzag walk where available.
func (p Profile) PreferredWalk() partition.Walk {
	if p.Zigzag {
		return partition.WalkZigzag
	}
	return partition.WalkDiagonal
}

// HostInfo summarizes the machine running the reference dispatcher.
type HostInfo struct {
	OS       string   `json:"os"`
	Arch     string   `json:"arch"`
	CPUs     int      `json:"cpus"`
	Features []string `json:"features"`
}

// Host inspects the current machine.
func Host() HostInfo {
	h := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		CPUs: runtime.NumCPU(),
	}

	add := func(ok bool, name string) {
		if ok {
			h.Features = append(h.Features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE2, "sse2")
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return h
}

// Workers is the worker count for the reference dispatcher: one per CPU.
func (h HostInfo) Workers() int {
	return max(1, h.CPUs)
}

// String returns a one-line summary.
func (h HostInfo) String() string {
	feat := "none"
	if len(h.Features) > 0 {
		feat = strings.Join(h.Features, " ")
	}
	return fmt.Sprintf("%s/%s, %d CPUs, SIMD: %s", h.OS, h.Arch, h.CPUs, feat)
}
