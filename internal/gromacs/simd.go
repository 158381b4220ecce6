package gromacs

import (
	"strings"

	"github.com/goplus/gmxbuild/internal/hostcpu"
	"github.com/goplus/gmxbuild/internal/version"
	"github.com/qiniu/x/log"
)

// OptArchGeneric asks for a build that runs on any CPU of the family.
const OptArchGeneric = "GENERIC"

type simdTarget struct {
	match func(optarch string) bool
	since string
	value string
}

func contains(s string) func(string) bool {
	return func(optarch string) bool { return strings.Contains(optarch, s) }
}

// Checked in order, the first match wins.
var simdTargets = []simdTarget{
	{contains("MIC-AVX512"), "2016", "AVX_512_KNL"},
	{contains("AVX512"), "2016", "AVX_512"},
	{contains("AVX2"), "5.0", "AVX2_256"},
	{contains("AVX"), "", "AVX_256"},
	// no SSE3 target exists, SSE4.1 gains little over SSE2
	{contains("SSE3"), "", "SSE2"},
	{contains("SSE2"), "", "SSE2"},
	{contains("MARCH=NOCONA"), "", "SSE2"},
}

// SIMD maps an optarch setting to the GMX_SIMD value for GROMACS
// version v on a CPU of architecture arch. It returns "" when GROMACS should
// detect the host architecture itself.
func SIMD(optarch, v, arch string, logger *log.Logger) string {
	logger = stdOr(logger)
	optarch = strings.ToUpper(optarch)

	res := ""
	for _, t := range simdTargets {
		if t.match(optarch) && (t.since == "" || version.AtLeast(v, t.since)) {
			res = t.value
			break
		}
	}
	if res == "" {
		switch {
		case optarch == OptArchGeneric:
			res = "None"
			if arch == hostcpu.X86_64 {
				res = "SSE2"
			}
		case optarch != "":
			logger.Warnf("optarch is set to %s but not taken into account, "+
				"compiling GROMACS for the current host architecture", optarch)
		}
	}

	if res != "" {
		logger.Infof("Target architecture based on optarch (%q): %s", optarch, res)
	} else {
		logger.Infof("No target architecture specified based on optarch (%q)", optarch)
	}
	return res
}
