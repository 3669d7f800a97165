package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/trace"
	"github.com/hcle-sim/hcle/sim/vector"
)

var (
	runSteps      int // Number of batched steps
	progressEvery int // Steps between progress logs
	maxFaults     int // Backend faults tolerated before aborting
)

// RolloutResult aggregates a random-agent rollout.
type RolloutResult struct {
	Steps       int           // batched steps taken
	Transitions int           // Steps × units
	Episodes    int           // unit episodes that reached done
	Resets      int           // pipeline resets after the first
	Faults      int           // backend faults recovered by resetting
	TotalReward float64       // summed over all units and steps
	Elapsed     time.Duration // wall time of the step loop
}

// FPS returns transitions per second.
func (r RolloutResult) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Transitions) / r.Elapsed.Seconds()
}

// randomActions fills actions with uniform samples from [0, numActions).
func randomActions(rng *rand.Rand, actions []int, numActions int) {
	for i := range actions {
		actions[i] = rng.Intn(numActions)
	}
}

// rollout drives p with uniformly random actions for steps batched steps.
//
// The pipeline never auto-resets, so rollout resets every unit once all of
// them have reported done. Each reset uses the next seed so episodes differ.
// A backend fault is logged and answered with a reset, up to maxFaults.
func rollout(p *vector.Pipeline, steps int, seed int64, progressEvery, maxFaults int) (RolloutResult, error) {
	var res RolloutResult
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed)).ForSubsystem(sim.SubsystemAgent)
	n := p.NumUnits()
	numActions := len(p.ActionSet())
	actions := make([]int, n)
	finished := make([]bool, n)

	resetSeed := seed
	reset := func() error {
		if _, _, err := p.Reset(&resetSeed); err != nil {
			return err
		}
		resetSeed++
		clear(finished)
		return nil
	}
	if err := reset(); err != nil {
		return res, err
	}

	start := time.Now()
	for res.Steps < steps {
		randomActions(rng, actions, numActions)
		out, err := p.Step(actions)
		if err != nil {
			if sim.KindOf(err) != sim.KindBackend || res.Faults >= maxFaults {
				return res, err
			}
			res.Faults++
			logrus.Warnf("Step %d: %v; resetting (%d/%d faults)", res.Steps, err, res.Faults, maxFaults)
			if err := reset(); err != nil {
				return res, err
			}
			res.Resets++
			continue
		}
		res.Steps++
		res.Transitions += n

		stepReward := 0.0
		allDone := true
		for i, r := range out.Rewards {
			stepReward += float64(r)
			if out.Dones[i] && !finished[i] {
				finished[i] = true
				res.Episodes++
			}
			allDone = allDone && finished[i]
		}
		res.TotalReward += stepReward

		if progressEvery > 0 && res.Steps%progressEvery == 0 {
			logrus.Infof("Step %5d: mean reward=%6.2f, total reward=%10.2f, episodes=%d",
				res.Steps, stepReward/float64(n), res.TotalReward, res.Episodes)
		}
		if allDone && res.Steps < steps {
			if err := reset(); err != nil {
				return res, err
			}
			res.Resets++
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// printRolloutResult writes the run summary.
func printRolloutResult(w io.Writer, r RolloutResult) {
	fmt.Fprintln(w, "=== Run Summary ===")
	fmt.Fprintf(w, "Steps                : %d\n", r.Steps)
	fmt.Fprintf(w, "Transitions          : %d\n", r.Transitions)
	fmt.Fprintf(w, "Episodes Completed   : %d\n", r.Episodes)
	fmt.Fprintf(w, "Pipeline Resets      : %d\n", r.Resets)
	fmt.Fprintf(w, "Backend Faults       : %d\n", r.Faults)
	fmt.Fprintf(w, "Total Reward         : %.2f\n", r.TotalReward)
	fmt.Fprintf(w, "Elapsed              : %.2f s\n", r.Elapsed.Seconds())
	fmt.Fprintf(w, "Throughput           : %.2f FPS\n", r.FPS())
}

// printTraceSummary writes aggregate trace statistics. Nil-safe.
func printTraceSummary(w io.Writer, pt *trace.PipelineTrace) {
	if !pt.Enabled() {
		return
	}
	s := trace.Summarize(pt)
	fmt.Fprintln(w, "=== Pipeline Trace ===")
	fmt.Fprintf(w, "Resets               : %d\n", s.Resets)
	fmt.Fprintf(w, "Steps                : %d\n", s.Steps)
	fmt.Fprintf(w, "Failed Calls         : %d\n", s.FailedCalls)
	fmt.Fprintf(w, "Episode Ends         : %d\n", s.EpisodeEnds)
	fmt.Fprintf(w, "Mean Batch Reward    : %.2f\n", s.MeanBatchReward)
	fmt.Fprintf(w, "StepWait (ms)        : mean=%.3f p50=%.3f p95=%.3f p99=%.3f max=%.3f\n",
		s.WaitMs.Mean, s.WaitMs.P50, s.WaitMs.P95, s.WaitMs.P99, s.WaitMs.Max)
}

// runCmd steps a random agent through the pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a random agent against a title",
	RunE: func(cmd *cobra.Command, args []string) error {
		pt := newTraceFromFlags()
		p, err := openPipeline(pt)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				logrus.Errorf("Closing pipeline: %v", err)
			}
		}()

		logrus.Infof("Running %d steps with random actions", runSteps)
		res, err := rollout(p, runSteps, seed, progressEvery, maxFaults)
		if err != nil {
			return fmt.Errorf("rollout after %d steps: %w", res.Steps, err)
		}
		printRolloutResult(os.Stdout, res)
		printTraceSummary(os.Stdout, pt)
		logrus.Info("Run complete.")
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runSteps, "steps", 1000, "Number of batched steps")
	runCmd.Flags().IntVar(&progressEvery, "progress-every", 20, "Log progress every N steps (0 disables)")
	runCmd.Flags().IntVar(&maxFaults, "max-faults", 0, "Backend faults tolerated (each answered by a reset) before aborting")
}
