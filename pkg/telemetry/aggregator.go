// Package telemetry aggregates SystemMetric events into rolling statistics
// and reports bus health.
package telemetry

import (
	"maps"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of recent values kept per metric.
const DefaultWindow = 256

// Stat summarizes the recent values of one metric.
type Stat struct {
	Count  int     `json:"count"`
	Last   float64 `json:"last"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
}

// Summary maps metric names to their statistics.
type Summary map[string]Stat

// Names returns the metric names in order.
func (s Summary) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// ring is a fixed-size window of values, oldest overwritten first.
type ring struct {
	values []float64
	next   int
	full   bool
	total  int
}

func (r *ring) add(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

func (r *ring) last() float64 {
	i := r.next - 1
	if i < 0 {
		i = len(r.values) - 1
	}
	return r.values[i]
}

func (r *ring) snapshot() []float64 {
	if r.full {
		return slices.Clone(r.values)
	}
	return slices.Clone(r.values[:r.next])
}

// Aggregator keeps a window of values per metric name. It is safe for
// concurrent use.
type Aggregator struct {
	window int

	mu     sync.Mutex
	series map[string]*ring
}

// NewAggregator creates an aggregator. window <= 0 means DefaultWindow.
func NewAggregator(window int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{window: window, series: make(map[string]*ring)}
}

// Add records a value.
func (a *Aggregator) Add(name string, v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.series[name]
	if !ok {
		r = &ring{values: make([]float64, a.window)}
		a.series[name] = r
	}
	r.add(v)
}

// Summary computes statistics over each window. Count is the total number
// of values ever recorded.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	type snap struct {
		values []float64
		last   float64
		total  int
	}
	snaps := make(map[string]snap, len(a.series))
	for name, r := range a.series {
		snaps[name] = snap{values: r.snapshot(), last: r.last(), total: r.total}
	}
	a.mu.Unlock()

	out := make(Summary, len(snaps))
	for name, s := range snaps {
		out[name] = summarize(s.values, s.last, s.total)
	}
	return out
}

func summarize(values []float64, last float64, total int) Stat {
	st := Stat{Count: total, Last: last}
	if len(values) == 0 {
		return st
	}
	if len(values) == 1 {
		st.Mean, st.P50, st.P95 = values[0], values[0], values[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	slices.Sort(values)
	st.P50 = stat.Quantile(0.5, stat.Empirical, values, nil)
	st.P95 = stat.Quantile(0.95, stat.Empirical, values, nil)
	return st
}
