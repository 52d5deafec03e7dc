// Package cpuspec sizes interpreter thread pools from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PerformanceCores int // 0 when the part is not a known hybrid design
}

// GetCPUSpec returns the specification of the running CPU
func GetCPUSpec() CPUSpec {
	return newCPUSpec(cpuid.CPU.BrandName, cpuid.CPU.LogicalCores)
}

func newCPUSpec(brandName string, logicalCores int) CPUSpec {
	return CPUSpec{
		BrandName:        brandName,
		LogicalCores:     logicalCores,
		PerformanceCores: performanceCores(brandName),
	}
}

// OptimalThreadCount returns the number of interpreter threads to use.
// Hybrid CPUs use their performance cores only; everything else uses all
// logical cores. The result never exceeds the CPUs visible to the process.
func (c CPUSpec) OptimalThreadCount() int {
	return c.threadCount(runtime.NumCPU())
}

func (c CPUSpec) threadCount(available int) int {
	threads := c.LogicalCores
	if c.PerformanceCores > 0 {
		threads = c.PerformanceCores
	}
	if threads <= 0 || threads > available {
		threads = available
	}
	return max(threads, 1)
}

// ResolveThreads returns configured when it is positive and fits the host,
// otherwise the optimal count for this CPU.
func ResolveThreads(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 && configured <= available {
		return configured
	}
	return GetCPUSpec().threadCount(available)
}

// coreRule maps a brand-name pattern to a P-core count.
type coreRule struct {
	pattern *regexp.Regexp
	pCores  int
}

// Hybrid parts where scheduling on E-cores slows inference down. First match wins.
var hybridRules = []coreRule{
	// Intel 12th to 14th gen desktop
	{regexp.MustCompile(`core.*i[79]-1[234][79]00`), 8},
	{regexp.MustCompile(`core.*i5-1[234][456]00`), 6},
	{regexp.MustCompile(`core.*i3-1[234]100`), 4},
	// Intel Core Ultra 200S
	{regexp.MustCompile(`core.*ultra\s+[79]\s+(processor\s+)?2[68]5`), 8},
	{regexp.MustCompile(`core.*ultra\s+7\s+(processor\s+)?255`), 8},
	{regexp.MustCompile(`core.*ultra\s+5\s+(processor\s+)?235`), 6},
	{regexp.MustCompile(`core.*ultra\s+5\s+(processor\s+)?225`), 4},
	// Apple Silicon
	{regexp.MustCompile(`apple\s+m2\s+ultra`), 24},
	{regexp.MustCompile(`apple\s+m[34]\s+ultra`), 24},
	{regexp.MustCompile(`apple\s+m1\s+ultra`), 16},
	{regexp.MustCompile(`apple\s+m[34]\s+max`), 12},
	{regexp.MustCompile(`apple\s+m2\s+max`), 12},
	{regexp.MustCompile(`apple\s+m1\s+max`), 8},
	{regexp.MustCompile(`apple\s+m4\s+pro`), 10},
	{regexp.MustCompile(`apple\s+m[123]\s+pro`), 8},
	{regexp.MustCompile(`apple\s+m[1234]\b`), 4},
}

func performanceCores(brandName string) int {
	brand := strings.ToLower(brandName)
	for _, rule := range hybridRules {
		if rule.pattern.MatchString(brand) {
			return rule.pCores
		}
	}
	return 0
}
