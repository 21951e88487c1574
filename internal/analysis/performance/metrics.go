// internal/analysis/performance/metrics.go
package performance

import (
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

const topResources = 5

// collectScript observes buffered Web Vitals for the given window and then
// reads navigation, resource and memory data. Keys match the schemas JSON tags.
const collectScript = `new Promise((resolve) => {
	const vitals = { lcp: null, fid: null, cls: null };
	const observers = [];
	const observe = (type, cb) => {
		try {
			const o = new PerformanceObserver((list) => cb(list.getEntries()));
			o.observe({ type, buffered: true });
			observers.push(o);
			return true;
		} catch (e) {
			return false;
		}
	};
	observe('largest-contentful-paint', (entries) => {
		const last = entries[entries.length - 1];
		if (last) vitals.lcp = last.renderTime || last.loadTime || last.startTime;
	});
	observe('first-input', (entries) => {
		const first = entries[0];
		if (first && vitals.fid === null) vitals.fid = first.processingStart - first.startTime;
	});
	let cls = 0;
	const shifts = observe('layout-shift', (entries) => {
		for (const e of entries) {
			if (!e.hadRecentInput) cls += e.value;
		}
	});
	setTimeout(() => {
		observers.forEach((o) => o.disconnect());
		if (shifts) vitals.cls = cls;
		const nav = performance.getEntriesByType('navigation')[0];
		const fcp = performance.getEntriesByName('first-contentful-paint')[0];
		const navigation = nav ? {
			ttfb: nav.responseStart - nav.requestStart,
			fcp: fcp ? fcp.startTime : null,
			dom_content_loaded: nav.domContentLoadedEventEnd - nav.domContentLoadedEventStart,
			load_complete: nav.loadEventEnd - nav.loadEventStart,
			total_time: nav.loadEventEnd - nav.startTime,
			dns: nav.domainLookupEnd - nav.domainLookupStart,
			tcp: nav.connectEnd - nav.connectStart,
			request: nav.responseStart - nav.requestStart,
			response: nav.responseEnd - nav.responseStart,
			render: nav.domInteractive - nav.responseEnd,
		} : null;
		const resources = performance.getEntriesByType('resource').map((r) => ({
			name: r.name,
			type: r.initiatorType || 'other',
			duration_ms: r.duration,
			size_bytes: Math.round(r.transferSize || r.encodedBodySize || 0),
		}));
		const m = performance.memory;
		const memory = m ? {
			used_js_heap_size: m.usedJSHeapSize,
			total_js_heap_size: m.totalJSHeapSize,
			js_heap_size_limit: m.jsHeapSizeLimit,
		} : null;
		resolve({ vitals, navigation, resources, memory });
	}, %d);
})`

// rawMetrics is the shape returned by collectScript.
type rawMetrics struct {
	Vitals struct {
		LCP *float64 `json:"lcp"`
		FID *float64 `json:"fid"`
		CLS *float64 `json:"cls"`
	} `json:"vitals"`
	Navigation *schemas.NavigationTiming `json:"navigation"`
	Resources  []schemas.ResourceEntry   `json:"resources"`
	Memory     *schemas.MemoryInfo       `json:"memory"`
}

func buildCollectScript(window time.Duration) string {
	return fmt.Sprintf(collectScript, window.Milliseconds())
}

// toMetrics converts the raw observation into the reported metrics block.
func (r rawMetrics) toMetrics() *schemas.PerformanceMetrics {
	m := &schemas.PerformanceMetrics{
		LCP:       r.Vitals.LCP,
		FID:       r.Vitals.FID,
		CLS:       r.Vitals.CLS,
		Resources: summarizeResources(r.Resources),
		Memory:    r.Memory,
	}
	if r.Navigation != nil {
		m.Navigation = *r.Navigation
	}
	return m
}

// summarizeResources counts entries by initiator type and keeps the slowest
// and largest few. The input slice is not modified.
func summarizeResources(entries []schemas.ResourceEntry) schemas.ResourceSummary {
	summary := schemas.ResourceSummary{
		Count:   len(entries),
		ByType:  make(map[string]int),
		Slowest: []schemas.ResourceEntry{},
		Largest: []schemas.ResourceEntry{},
	}
	for _, e := range entries {
		summary.TotalBytes += e.Size
		summary.ByType[e.Type]++
	}

	sorted := make([]schemas.ResourceEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Duration > sorted[j].Duration })
	summary.Slowest = append(summary.Slowest, sorted[:min(topResources, len(sorted))]...)

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })
	for _, e := range sorted[:min(topResources, len(sorted))] {
		if e.Size > 0 {
			summary.Largest = append(summary.Largest, e)
		}
	}
	return summary
}
