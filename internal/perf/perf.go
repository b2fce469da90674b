// Package perf aggregates timing samples into per-name percentile
// summaries.
package perf

import (
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is how many samples are kept per name.
const DefaultWindow = 1000

// Sample is one timed operation.
type Sample struct {
	Name     string            `json:"name"`
	Duration time.Duration     `json:"-"`
	At       time.Time         `json:"at"`
	Tags     map[string]string `json:"tags,omitempty"`
}

type sampleJSON struct {
	Name       string            `json:"name"`
	DurationMS float64           `json:"duration_ms"`
	At         time.Time         `json:"at"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// MarshalJSON encodes the duration as fractional milliseconds.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{Name: s.Name, DurationMS: toMS(s.Duration), At: s.At, Tags: s.Tags})
}

// UnmarshalJSON decodes duration_ms.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var v sampleJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Sample{Name: v.Name, Duration: fromMS(v.DurationMS), At: v.At, Tags: v.Tags}
	return nil
}

// Stats summarizes the samples of one name. Percentiles use the
// nearest-rank method.
type Stats struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Min   time.Duration `json:"-"`
	Max   time.Duration `json:"-"`
	Mean  time.Duration `json:"-"`
	P50   time.Duration `json:"-"`
	P90   time.Duration `json:"-"`
	P95   time.Duration `json:"-"`
	P99   time.Duration `json:"-"`
}

type statsJSON struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	MinMS  float64 `json:"min_ms"`
	MaxMS  float64 `json:"max_ms"`
	MeanMS float64 `json:"mean_ms"`
	P50MS  float64 `json:"p50_ms"`
	P90MS  float64 `json:"p90_ms"`
	P95MS  float64 `json:"p95_ms"`
	P99MS  float64 `json:"p99_ms"`
}

// MarshalJSON encodes durations as fractional milliseconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Name: s.Name, Count: s.Count,
		MinMS: toMS(s.Min), MaxMS: toMS(s.Max), MeanMS: toMS(s.Mean),
		P50MS: toMS(s.P50), P90MS: toMS(s.P90), P95MS: toMS(s.P95), P99MS: toMS(s.P99),
	})
}

// UnmarshalJSON decodes the millisecond fields.
func (s *Stats) UnmarshalJSON(b []byte) error {
	var v statsJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Stats{
		Name: v.Name, Count: v.Count,
		Min: fromMS(v.MinMS), Max: fromMS(v.MaxMS), Mean: fromMS(v.MeanMS),
		P50: fromMS(v.P50MS), P90: fromMS(v.P90MS), P95: fromMS(v.P95MS), P99: fromMS(v.P99MS),
	}
	return nil
}

func toMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMS(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

// ring keeps the newest samples of one name.
type ring struct {
	buf  []time.Duration
	next int
	full bool
}

func (r *ring) add(d time.Duration) {
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) values() []time.Duration {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]time.Duration, n)
	copy(out, r.buf[:n])
	return out
}

// Aggregator collects samples. It is safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	window int
	series map[string]*ring
}

// NewAggregator keeps the newest window samples per name. A non-positive
// window selects DefaultWindow.
func NewAggregator(window int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{window: window, series: make(map[string]*ring)}
}

// Record adds a sample. Samples without a name or with a negative
// duration are dropped.
func (a *Aggregator) Record(s Sample) {
	if s.Name == "" || s.Duration < 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.series[s.Name]
	if !ok {
		r = &ring{buf: make([]time.Duration, a.window)}
		a.series[s.Name] = r
	}
	r.add(s.Duration)
}

// RecordAll adds every sample.
func (a *Aggregator) RecordAll(samples []Sample) {
	for _, s := range samples {
		a.Record(s)
	}
}

// Summary returns stats for every name, sorted by name.
func (a *Aggregator) Summary() []Stats {
	a.mu.Lock()
	snapshot := make(map[string][]time.Duration, len(a.series))
	for name, r := range a.series {
		snapshot[name] = r.values()
	}
	a.mu.Unlock()

	out := make([]Stats, 0, len(snapshot))
	for name, values := range snapshot {
		out = append(out, compute(name, values))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Slow returns the stats whose P95 exceeds threshold.
func (a *Aggregator) Slow(threshold time.Duration) []Stats {
	var out []Stats
	for _, s := range a.Summary() {
		if s.P95 > threshold {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops all samples.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = make(map[string]*ring)
}

func compute(name string, values []time.Duration) Stats {
	s := Stats{Name: name, Count: len(values)}
	if len(values) == 0 {
		return s
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var sum time.Duration
	for _, v := range values {
		sum += v
	}
	s.Min = values[0]
	s.Max = values[len(values)-1]
	s.Mean = sum / time.Duration(len(values))
	s.P50 = percentile(values, 50)
	s.P90 = percentile(values, 90)
	s.P95 = percentile(values, 95)
	s.P99 = percentile(values, 99)
	return s
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted)) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
