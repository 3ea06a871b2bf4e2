package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// Minimum global memory below which some benchmarks fall back to the
// interpreter.
var minMemory = map[Device]uint64{
	CPU: 16 * humanize.GByte,
	GPU: 6 * humanize.GByte,
}

// jsonNumber accepts a JSON number or a numeric string.
type jsonNumber int64

func (n *jsonNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = jsonNumber(v)
	return nil
}

// jsonText accepts a JSON string or number and keeps its text.
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = jsonText(s)
		return nil
	}
	*t = jsonText(bytes.TrimSpace(b))
	return nil
}

// DeviceInfo is one OpenCL device as reported by clinfo-json.
type DeviceInfo struct {
	Name         string     `json:"-"`
	ClockMHz     jsonText   `json:"Max clock frequency (MHz)"`
	ComputeUnits jsonNumber `json:"Max compute units"`
	MemoryHuman  jsonText   `json:"Global memory size (h)"`
	MemoryBytes  jsonNumber `json:"Global memory size (Byte)"`
	Driver       jsonText   `json:"Driver version"`
}

// Memory returns the human readable global memory size.
func (d DeviceInfo) Memory() string {
	if d.MemoryHuman != "" {
		return string(d.MemoryHuman)
	}
	if d.MemoryBytes < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(d.MemoryBytes))
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s MHz) (%d CU) (%s) v%s", d.Name, d.ClockMHz, d.ComputeUnits, d.Memory(), d.Driver)
}

// ClinfoReport is the parsed output of the runtime's clinfo-json command.
type ClinfoReport struct {
	Total int
	CPUs  []DeviceInfo
	GPUs  []DeviceInfo
	// Warnings lists devices below the recommended memory.
	Warnings []string
}

// Usable reports whether benchmarking can pick a device. Only a report where
// neither the CPU count nor the GPU count is exactly one is unusable.
func (r *ClinfoReport) Usable() bool {
	return len(r.CPUs) == 1 || len(r.GPUs) == 1
}

// CPU returns the name of the first OpenCL CPU device, if any.
func (r *ClinfoReport) CPU() string {
	if len(r.CPUs) == 0 {
		return ""
	}
	return r.CPUs[0].Name
}

// GPU returns the name of the first OpenCL GPU device, if any.
func (r *ClinfoReport) GPU() string {
	if len(r.GPUs) == 0 {
		return ""
	}
	return r.GPUs[0].Name
}

type clinfoJSON struct {
	Total int                   `json:"Total number of OpenCL devices"`
	NCPU  int                   `json:"Number of OpenCL CPU devices"`
	NGPU  int                   `json:"Number of OpenCL GPU devices"`
	CPUs  map[string]DeviceInfo `json:"CPUs"`
	GPUs  map[string]DeviceInfo `json:"GPUs"`
}

// ParseClinfo decodes clinfo-json output. Text around the JSON object is
// ignored.
func ParseClinfo(out string) (*ClinfoReport, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("clinfo output contains no JSON object")
	}

	var raw clinfoJSON
	if err := json.Unmarshal([]byte(out[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parsing clinfo output: %w", err)
	}

	report := &ClinfoReport{Total: raw.Total}
	report.CPUs = devices(raw.CPUs)
	report.GPUs = devices(raw.GPUs)
	for kind, list := range map[Device][]DeviceInfo{CPU: report.CPUs, GPU: report.GPUs} {
		for _, d := range list {
			if d.MemoryBytes < 0 || uint64(d.MemoryBytes) < minMemory[kind] {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s memory is %s < %s", d.Name, d.Memory(), humanize.Bytes(minMemory[kind])))
			}
		}
	}
	sort.Strings(report.Warnings)
	return report, nil
}

func devices(m map[string]DeviceInfo) []DeviceInfo {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]DeviceInfo, 0, len(names))
	for _, name := range names {
		d := m[name]
		d.Name = name
		list = append(list, d)
	}
	return list
}

// Clinfo queries the OpenCL devices through the runtime and prints them.
// The report is returned even when it is not Usable.
func (p *Prober) Clinfo(ctx context.Context) (*ClinfoReport, error) {
	if p.Verbose {
		if _, err := p.runInternal(ctx, "clinfo"); err != nil {
			logger.Logger().Debugf("clinfo failed: %v", err)
		}
	}

	out, err := p.runInternal(ctx, "clinfo-json")
	if err != nil {
		return nil, fmt.Errorf("querying OpenCL devices: %w", err)
	}
	report, err := ParseClinfo(out)
	if err != nil {
		return nil, err
	}

	logger.Progress("Number of OpenCL devices: %d [%d CPU(s)] [%d GPU(s)]", report.Total, len(report.CPUs), len(report.GPUs))
	if report.Total == 0 {
		logger.Fail("MegaGuards did not find any OpenCL device")
		return report, nil
	}
	for _, group := range []struct {
		title string
		list  []DeviceInfo
	}{{"CPUs", report.CPUs}, {"GPUs", report.GPUs}} {
		if len(group.list) == 0 {
			continue
		}
		logger.Progress("\t%s:", group.title)
		for _, d := range group.list {
			logger.Progress("\t\t%s", d)
		}
	}
	for _, w := range report.Warnings {
		logger.Warn("%s", w)
		logger.Warn("This might cause some benchmarks to fallback to Truffle mode")
	}

	logger.OK("MegaGuards detected OpenCL device(s)")
	if !report.Usable() {
		logger.Fail("MegaGuards benchmarking might not work properly there should be one OpenCL CPU and one GPU")
		logger.Fail(`  The number of OpenCL CPU devices should be "1" and OpenCL GPU devices should be "1"`)
	}
	return report, nil
}
