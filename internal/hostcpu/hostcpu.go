// Package hostcpu describes the CPU of the build host.
package hostcpu

import (
	"runtime"
	"sort"

	"golang.org/x/sys/cpu"
)

const (
	X86_64  = "x86_64"
	AArch64 = "aarch64"
	POWER   = "POWER"
)

// Info is the architecture family and the feature flags of a CPU. Flags
// use the lower-case names of /proc/cpuinfo.
type Info struct {
	Arch     string
	Features map[string]bool
}

// Detect returns the Info of the host.
func Detect() Info {
	return Info{
		Arch: archOf(runtime.GOARCH),
		Features: map[string]bool{
			"sse2":    cpu.X86.HasSSE2,
			"sse3":    cpu.X86.HasSSE3,
			"sse4_1":  cpu.X86.HasSSE41,
			"avx":     cpu.X86.HasAVX,
			"avx2":    cpu.X86.HasAVX2,
			"avx512f": cpu.X86.HasAVX512F,
			"fma":     cpu.X86.HasFMA || runtime.GOARCH == "arm64",
			"asimd":   cpu.ARM64.HasASIMD,
			"sve":     cpu.ARM64.HasSVE,
		},
	}
}

// Has reports whether the named feature is present.
func (i Info) Has(feature string) bool {
	return i.Features[feature]
}

// List returns the present features in sorted order.
func (i Info) List() []string {
	var out []string
	for f, ok := range i.Features {
		if ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func archOf(goarch string) string {
	switch goarch {
	case "amd64":
		return X86_64
	case "arm64":
		return AArch64
	case "ppc64", "ppc64le":
		return POWER
	}
	return goarch
}
