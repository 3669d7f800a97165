package trace

// TraceLevel controls the verbosity of pipeline tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelCalls captures every Reset and StepWait.
	TraceLevelCalls TraceLevel = "calls"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelCalls: true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// PipelineTrace collects call records from a vector pipeline.
//
// Thread-safety: NOT thread-safe. Written only by the pipeline's coordinator.
type PipelineTrace struct {
	Config  TraceConfig
	Records []StepRecord
	next    int
}

// NewPipelineTrace creates a PipelineTrace ready for recording.
func NewPipelineTrace(config TraceConfig) *PipelineTrace {
	return &PipelineTrace{
		Config:  config,
		Records: make([]StepRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (pt *PipelineTrace) Enabled() bool {
	return pt != nil && pt.Config.Level == TraceLevelCalls
}

// Record appends a call record, assigning its Index. No-op when disabled.
func (pt *PipelineTrace) Record(record StepRecord) {
	if !pt.Enabled() {
		return
	}
	record.Index = pt.next
	pt.next++
	pt.Records = append(pt.Records, record)
}
