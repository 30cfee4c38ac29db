// Package index implements the Reader half of the profile engine: opening
// a binary index produced by internal/callgrind, validating its version,
// and answering per-function queries via seek-based random access.
package index

import (
	"fmt"
)

// CostFormat converts a raw integer cost into the display string or value
// the Reader returns for it. The Reader holds one CostFormat, set at Open
// and replaceable with SetCostFormat; individual queries take no format of
// their own.
type CostFormat interface {
	// Format renders one raw cost.
	Format(cost uint64) string
	// Name identifies the format ("percent", "msec", "usec").
	Name() string
}

// PercentFormat renders cost as a percentage of summary, two decimal
// places, point separator, no grouping. summary is fixed at construction;
// callers build a PercentFormat once the trace's summary total is known
// (typically from GetHeader("summary")).
func PercentFormat(summary uint64) CostFormat {
	return percentFormat{summary: summary}
}

type percentFormat struct {
	summary uint64
}

func (f percentFormat) Name() string { return "percent" }

func (f percentFormat) Format(cost uint64) string {
	if f.summary == 0 {
		return "0.00"
	}
	pct := float64(cost) * 100 / float64(f.summary)
	return fmt.Sprintf("%.2f", pct)
}

// MsecFormat renders cost/1000 rounded half away from zero (costs are
// non-negative here, so this is plain half-up).
func MsecFormat() CostFormat {
	return msecFormat{}
}

type msecFormat struct{}

func (f msecFormat) Name() string { return "msec" }

func (f msecFormat) Format(cost uint64) string {
	return fmt.Sprintf("%d", (cost+500)/1000)
}

// UsecFormat passes the raw cost through unchanged. It is also the format
// used for any unrecognized format tag.
func UsecFormat() CostFormat {
	return usecFormat{}
}

type usecFormat struct{}

func (f usecFormat) Name() string { return "usec" }

func (f usecFormat) Format(cost uint64) string {
	return fmt.Sprintf("%d", cost)
}

// ParseCostFormat resolves a configured format tag to a CostFormat,
// defaulting to usec for anything unrecognized.
func ParseCostFormat(tag string, summary uint64) CostFormat {
	switch tag {
	case "percent":
		return PercentFormat(summary)
	case "msec":
		return MsecFormat()
	default:
		return UsecFormat()
	}
}
