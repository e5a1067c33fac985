package models

// MProcessingMetrics represents the performance metrics for the aggregation pipeline.
type MProcessingMetrics struct {
	ComputeTimeSeconds float64 `json:"compute_time_seconds"`
	KindsProcessed     int     `json:"kinds_processed"`
	Subscribers        int     `json:"subscribers"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
}
