package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/trace"
	"github.com/hcle-sim/hcle/sim/vector"
)

var (
	benchSteps int           // Steps per phase
	thinkTime  time.Duration // Simulated agent compute per step
)

// BenchResult compares a synchronous loop against a pipelined one.
type BenchResult struct {
	Units     int
	Steps     int
	ThinkTime time.Duration
	Sync      time.Duration
	Async     time.Duration
	SyncWait  trace.Distribution // per-step blocking time in ms, synchronous loop
	AsyncWait trace.Distribution // StepWait blocking time in ms, pipelined loop
}

func (r BenchResult) fps(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(r.Steps*r.Units) / d.Seconds()
}

// SyncFPS returns transitions per second of the synchronous loop.
func (r BenchResult) SyncFPS() float64 { return r.fps(r.Sync) }

// AsyncFPS returns transitions per second of the pipelined loop.
func (r BenchResult) AsyncFPS() float64 { return r.fps(r.Async) }

// Speedup is AsyncFPS / SyncFPS.
func (r BenchResult) Speedup() float64 {
	if r.SyncFPS() == 0 {
		return 0
	}
	return r.AsyncFPS() / r.SyncFPS()
}

// think simulates agent compute such as a policy forward pass.
func think(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// benchmark runs steps synchronous steps (step, then think) and steps pipelined
// steps (think while the previous batch simulates) against p.
func benchmark(p *vector.Pipeline, steps int, thinkTime time.Duration, seed int64) (BenchResult, error) {
	res := BenchResult{Units: p.NumUnits(), Steps: steps, ThinkTime: thinkTime}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed)).ForSubsystem(sim.SubsystemAgent)
	numActions := len(p.ActionSet())
	actions := make([]int, p.NumUnits())

	logrus.Infof("Running SYNCHRONOUS phase: %d steps", steps)
	if _, _, err := p.Reset(&seed); err != nil {
		return res, err
	}
	waits := make([]float64, 0, steps)
	start := time.Now()
	for i := 0; i < steps; i++ {
		randomActions(rng, actions, numActions)
		t := time.Now()
		if _, err := p.Step(actions); err != nil {
			return res, fmt.Errorf("synchronous step %d: %w", i, err)
		}
		waits = append(waits, float64(time.Since(t).Microseconds())/1000.0)
		think(thinkTime)
	}
	res.Sync = time.Since(start)
	res.SyncWait = trace.NewDistribution(waits)

	logrus.Infof("Running ASYNCHRONOUS phase: %d steps", steps)
	if _, _, err := p.Reset(&seed); err != nil {
		return res, err
	}
	randomActions(rng, actions, numActions)
	if err := p.StepAsync(actions); err != nil {
		return res, err
	}
	waits = waits[:0]
	start = time.Now()
	for i := 0; i < steps; i++ {
		think(thinkTime)
		t := time.Now()
		if _, err := p.StepWait(); err != nil {
			return res, fmt.Errorf("pipelined step %d: %w", i, err)
		}
		waits = append(waits, float64(time.Since(t).Microseconds())/1000.0)
		randomActions(rng, actions, numActions)
		if err := p.StepAsync(actions); err != nil {
			return res, err
		}
	}
	res.Async = time.Since(start)
	res.AsyncWait = trace.NewDistribution(waits)
	// Drain the batch primed for a step that will never be taken.
	if _, err := p.StepWait(); err != nil {
		return res, err
	}
	return res, nil
}

// printBenchResult writes the comparison report.
func printBenchResult(w io.Writer, r BenchResult) {
	fmt.Fprintln(w, "=== Pipeline Benchmark ===")
	fmt.Fprintf(w, "Units: %d, Steps: %d, Agent Think Time: %v\n", r.Units, r.Steps, r.ThinkTime)
	fmt.Fprintf(w, "Synchronous          : %.2f s (%.2f FPS), wait p50=%.3f ms p99=%.3f ms\n",
		r.Sync.Seconds(), r.SyncFPS(), r.SyncWait.P50, r.SyncWait.P99)
	fmt.Fprintf(w, "Asynchronous         : %.2f s (%.2f FPS), wait p50=%.3f ms p99=%.3f ms\n",
		r.Async.Seconds(), r.AsyncFPS(), r.AsyncWait.P50, r.AsyncWait.P99)
	fmt.Fprintf(w, "Speedup              : %.2fx\n", r.Speedup())
}

// benchCmd compares synchronous and pipelined stepping
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare synchronous and pipelined stepping with simulated agent compute",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				logrus.Errorf("Closing pipeline: %v", err)
			}
		}()

		res, err := benchmark(p, benchSteps, thinkTime, seed)
		if err != nil {
			return err
		}
		printBenchResult(os.Stdout, res)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchSteps, "steps", 500, "Steps per phase")
	benchCmd.Flags().DurationVar(&thinkTime, "think-time", 16*time.Millisecond, "Simulated agent compute per step")
}
