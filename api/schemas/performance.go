package schemas

// -- Performance Metric Schemas --

// PerformanceMetrics holds the observed Core Web Vitals and timing data for a
// page. Each vital is optional; a nil pointer means it was not observed.
type PerformanceMetrics struct {
	LCP        *float64         `json:"lcp_ms,omitempty"`
	FID        *float64         `json:"fid_ms,omitempty"`
	CLS        *float64         `json:"cls,omitempty"`
	Navigation NavigationTiming `json:"navigation"`
	Resources  ResourceSummary  `json:"resources"`
	Memory     *MemoryInfo      `json:"memory,omitempty"`
}

// NavigationTiming is derived from the navigation timing entry, in milliseconds.
type NavigationTiming struct {
	TTFB             float64  `json:"ttfb"`
	FCP              *float64 `json:"fcp,omitempty"`
	DOMContentLoaded float64  `json:"dom_content_loaded"`
	LoadComplete     float64  `json:"load_complete"`
	TotalTime        float64  `json:"total_time"`
	DNS              float64  `json:"dns"`
	TCP              float64  `json:"tcp"`
	Request          float64  `json:"request"`
	Response         float64  `json:"response"`
	Render           float64  `json:"render"`
}

// ResourceEntry is one loaded resource.
type ResourceEntry struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Duration float64 `json:"duration_ms"`
	Size     int64   `json:"size_bytes"`
}

// ResourceSummary aggregates resource timing entries.
type ResourceSummary struct {
	Count      int             `json:"count"`
	TotalBytes int64           `json:"total_bytes"`
	ByType     map[string]int  `json:"by_type"`
	Slowest    []ResourceEntry `json:"slowest"`
	Largest    []ResourceEntry `json:"largest"`
}

// MemoryInfo mirrors performance.memory where the browser exposes it.
type MemoryInfo struct {
	UsedJSHeapSize  int64 `json:"used_js_heap_size"`
	TotalJSHeapSize int64 `json:"total_js_heap_size"`
	JSHeapSizeLimit int64 `json:"js_heap_size_limit"`
}
