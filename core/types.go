package core

// State is a flat snapshot of a bucket's persistent fields. A bucket exported
// with TokenBucket.State can be rebuilt with Restore, in the same process or
// a later one; the four fields are the entire persistence contract.
type State struct {
	InfoRate  float64 `json:"info_rate"`  // Tokens added per second
	BurstSize float64 `json:"burst_size"` // Maximum tokens (burst ceiling)
	Tokens    float64 `json:"tokens"`     // Token level as of LastCheck
	LastCheck float64 `json:"last_check"` // Clock reading (seconds) of the last reconciliation
}
