// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Prometheus metrics. Entirely optional: a nil *Metrics disables collection,
// so embedding this package never forces a caller to run a metrics server.

package tfs

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters the page manager updates as it works.
// The zero value is not usable directly; construct with NewMetrics and
// register the result with a prometheus.Registerer of the caller's choice.
type Metrics struct {
	PagesAllocated       prometheus.Counter
	PagesFreed           prometheus.Counter
	DedupHits            prometheus.Counter
	PageChecksumFails    prometheus.Counter
	MetaclusterCkFails   prometheus.Counter
	FreelistPops         prometheus.Counter
	FreelistPushes       prometheus.Counter
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
}

// NewMetrics builds a Metrics with all series registered under the given
// namespace (e.g. "tfs"). It does not register them with any registry;
// callers do that themselves (prometheus.MustRegister or a custom
// Registerer), keeping this package agnostic of which registry is in use.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pager",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		PagesAllocated:     counter("pages_allocated_total", "Pages allocated via Alloc."),
		PagesFreed:         counter("pages_freed_total", "Pages released via Free."),
		DedupHits:          counter("dedup_hits_total", "Alloc calls served from the dedup table."),
		PageChecksumFails:  counter("page_checksum_mismatches_total", "Read calls that found a corrupt page."),
		MetaclusterCkFails: counter("metacluster_checksum_mismatches_total", "Freelist traversals that found a corrupt metacluster."),
		FreelistPops:       counter("freelist_pops_total", "Clusters popped from the freelist."),
		FreelistPushes:     counter("freelist_pushes_total", "Clusters pushed back to the freelist."),
		CacheHits:          counter("cache_hits_total", "Cluster cache hits."),
		CacheMisses:        counter("cache_misses_total", "Cluster cache misses."),
	}
}

// Collectors returns every series for bulk registration, e.g.
// registry.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.PagesAllocated, m.PagesFreed, m.DedupHits, m.PageChecksumFails,
		m.MetaclusterCkFails, m.FreelistPops, m.FreelistPushes, m.CacheHits, m.CacheMisses,
	}
}

func (m *Metrics) incCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) incCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
