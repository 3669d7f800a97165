package trace

// TraceSummary aggregates statistics from a PipelineTrace.
type TraceSummary struct {
	Resets          int
	Steps           int
	FailedCalls     int
	EpisodeEnds     int          // total done flags observed across all steps
	MeanBatchReward float64      // mean of per-step reward sums
	WaitMs          Distribution // StepWait blocking time in milliseconds (steps only)
}

// Summarize computes aggregate statistics from a PipelineTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(pt *PipelineTrace) *TraceSummary {
	summary := &TraceSummary{}
	if pt == nil {
		return summary
	}

	var waits []float64
	totalReward := 0.0
	for _, r := range pt.Records {
		if r.Failed {
			summary.FailedCalls++
		}
		switch r.Kind {
		case CallReset:
			summary.Resets++
		case CallStep:
			summary.Steps++
			summary.EpisodeEnds += r.Dones
			totalReward += r.RewardSum
			waits = append(waits, float64(r.Wait.Microseconds())/1000.0)
		}
	}
	if summary.Steps > 0 {
		summary.MeanBatchReward = totalReward / float64(summary.Steps)
	}
	summary.WaitMs = NewDistribution(waits)

	return summary
}
