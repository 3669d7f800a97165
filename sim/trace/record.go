// Package trace provides per-call recording for vector pipeline analysis.
// This package has no dependencies on sim/ or sim/vector/; it stores pure data types.
package trace

import "time"

// CallKind names the pipeline call a record describes.
type CallKind string

const (
	CallReset CallKind = "reset"
	CallStep  CallKind = "step"
)

// StepRecord captures one completed Reset or StepWait.
type StepRecord struct {
	Index     int           // monotonically increasing call index
	Kind      CallKind      // reset or step
	Wait      time.Duration // time the coordinator spent blocked collecting results
	RewardSum float64       // sum of the batch's rewards (0 for reset)
	Dones     int           // number of units reporting done (0 for reset)
	Failed    bool          // true if a backend fault failed the call
}
