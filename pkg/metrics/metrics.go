// Metric primitives in Prometheus text format
//
// Counter, Gauge and Histogram with label sets, and a Registry that
// renders them for scraping.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Labels represents metric labels as key-value pairs
type Labels map[string]string

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// key identifies a label set; empty and nil sets share a series.
func (l Labels) key() string {
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// render formats the set as {k="v",...}, with extra appended last.
func (l Labels) render(extra ...string) string {
	if len(l) == 0 && len(extra) == 0 {
		return ""
	}
	var pairs []string
	for _, k := range l.sortedKeys() {
		pairs = append(pairs, k+`="`+escapeLabel(l[k])+`"`)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		pairs = append(pairs, extra[i]+`="`+escapeLabel(extra[i+1])+`"`)
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string { return labelEscaper.Replace(s) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is anything a Registry can render.
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

// family holds the series of one metric name, one per label set.
type family[S any] struct {
	name, help, kind string

	mu     sync.Mutex
	series map[string]*S
	labels map[string]Labels
}

func (f *family[S]) setup(name, help, kind string) {
	f.name, f.help, f.kind = name, help, kind
	f.series = make(map[string]*S)
	f.labels = make(map[string]Labels)
}

func (f *family[S]) Name() string { return f.name }

// get returns the series for labels, creating it with newSeries when create
// is set.
func (f *family[S]) get(labels Labels, create bool, newSeries func() *S) *S {
	key := labels.key()
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[key]
	if !ok && create {
		s = newSeries()
		f.series[key] = s
		f.labels[key] = labels
	}
	return s
}

// each visits series in label order so output is stable between scrapes.
func (f *family[S]) each(fn func(Labels, *S)) {
	f.mu.Lock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	f.mu.Unlock()
	sort.Strings(keys)

	for _, k := range keys {
		f.mu.Lock()
		s, labels := f.series[k], f.labels[k]
		f.mu.Unlock()
		fn(labels, s)
	}
}

func (f *family[S]) header(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
}

// Counter is a monotonically increasing metric
type Counter struct {
	family[uint64]
}

func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.setup(name, help, "counter")
	return c
}

func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

func (c *Counter) Add(labels Labels, delta uint64) {
	atomic.AddUint64(c.get(labels, true, func() *uint64 { return new(uint64) }), delta)
}

// Get returns the value of one series, 0 if it was never touched.
func (c *Counter) Get(labels Labels) uint64 {
	if v := c.get(labels, false, nil); v != nil {
		return atomic.LoadUint64(v)
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	c.header(sb)
	c.each(func(l Labels, v *uint64) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, l.render(), atomic.LoadUint64(v))
	})
}

type gaugeValue struct {
	mu sync.Mutex
	v  float64
}

// Gauge is a metric that can go up and down
type Gauge struct {
	family[gaugeValue]
}

func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.setup(name, help, "gauge")
	return g
}

func (g *Gauge) value(labels Labels) *gaugeValue {
	return g.get(labels, true, func() *gaugeValue { return &gaugeValue{} })
}

func (g *Gauge) Set(labels Labels, v float64) {
	gv := g.value(labels)
	gv.mu.Lock()
	gv.v = v
	gv.mu.Unlock()
}

func (g *Gauge) Add(labels Labels, delta float64) {
	gv := g.value(labels)
	gv.mu.Lock()
	gv.v += delta
	gv.mu.Unlock()
}

func (g *Gauge) Sub(labels Labels, delta float64) { g.Add(labels, -delta) }
func (g *Gauge) Inc(labels Labels)                { g.Add(labels, 1) }
func (g *Gauge) Dec(labels Labels)                { g.Add(labels, -1) }

func (g *Gauge) Get(labels Labels) float64 {
	gv := g.get(labels, false, nil)
	if gv == nil {
		return 0
	}
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.v
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.header(sb)
	g.each(func(l Labels, gv *gaugeValue) {
		gv.mu.Lock()
		v := gv.v
		gv.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %s\n", g.name, l.render(), formatFloat(v))
	})
}

type histogramValue struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	// per bucket, not cumulative
	hits []uint64
}

// Histogram tracks the distribution of observations
type Histogram struct {
	family[histogramValue]
	bounds []float64
}

// NewHistogram creates a histogram; bounds need not be sorted.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{bounds: sorted}
	h.setup(name, help, "histogram")
	return h
}

func (h *Histogram) Observe(labels Labels, v float64) {
	hv := h.get(labels, true, func() *histogramValue {
		return &histogramValue{hits: make([]uint64, len(h.bounds))}
	})
	hv.mu.Lock()
	defer hv.mu.Unlock()
	hv.count++
	hv.sum += v
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		hv.hits[i]++
	}
}

// Count returns the number of observations of one series.
func (h *Histogram) Count(labels Labels) uint64 {
	hv := h.get(labels, false, nil)
	if hv == nil {
		return 0
	}
	hv.mu.Lock()
	defer hv.mu.Unlock()
	return hv.count
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.header(sb)
	h.each(func(l Labels, hv *histogramValue) {
		hv.mu.Lock()
		count, sum := hv.count, hv.sum
		hits := append([]uint64(nil), hv.hits...)
		hv.mu.Unlock()

		var cumulative uint64
		for i, bound := range h.bounds {
			cumulative += hits[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.render("le", formatFloat(bound)), cumulative)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.render("le", "+Inf"), count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, l.render(), formatFloat(sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, l.render(), count)
	})
}

// Registry renders metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric; names must be unique.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, dup := r.metrics[name]; dup {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = m
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every metric in Prometheus text format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
