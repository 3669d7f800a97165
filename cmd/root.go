package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hcle-sim/hcle/sim"
	"github.com/hcle-sim/hcle/sim/trace"
	"github.com/hcle-sim/hcle/sim/vector"
)

var (
	// Shared CLI flags
	logLevel    string // Log verbosity level
	catalogPath string // Path to titles.yaml
	title       string // Title to simulate
	numEnvs     int    // Number of units in the pipeline
	seed        int64  // Master seed for unit seeds and action sampling
	assetPath   string // Asset override for every unit
	traceLevel  string // Pipeline trace level

	// Preprocessing flags
	obsHeight     int  // Observation height
	obsWidth      int  // Observation width
	frameSkip     int  // Frames per action
	maxPool       bool // Max-pool the last two frames
	grayscale     bool // Luminance instead of RGB
	stackNum      int  // Frame-stack depth
	channelsFirst bool // (C, H, W) layout
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hcle",
	Short: "Batched asynchronous stepping for console-game simulations",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		if !trace.IsValidTraceLevel(traceLevel) {
			return fmt.Errorf("invalid trace level %q (valid: none, calls)", traceLevel)
		}
		return nil
	},
	SilenceUsage: true,
}

// unitConfigFromFlags builds the per-unit configuration.
func unitConfigFromFlags() sim.UnitConfig {
	return sim.UnitConfig{
		AssetPath:     assetPath,
		Title:         title,
		ObsHeight:     obsHeight,
		ObsWidth:      obsWidth,
		FrameSkip:     frameSkip,
		MaxPool:       maxPool,
		Grayscale:     grayscale,
		StackNum:      stackNum,
		ChannelsFirst: channelsFirst,
	}
}

// newTraceFromFlags returns nil when tracing is off.
func newTraceFromFlags() *trace.PipelineTrace {
	if traceLevel == "" || trace.TraceLevel(traceLevel) == trace.TraceLevelNone {
		return nil
	}
	return trace.NewPipelineTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
}

// openPipeline resolves the title through the catalog and builds the pipeline.
func openPipeline(pt *trace.PipelineTrace) (*vector.Pipeline, error) {
	catalog, err := resolveCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	reg, err := catalog.BuildRegistry()
	if err != nil {
		return nil, err
	}
	factory, err := reg.Factory(title)
	if err != nil {
		return nil, err
	}
	cfg := vector.Config{NumUnits: numEnvs, Unit: unitConfigFromFlags(), Trace: pt}
	p, err := vector.New(cfg, factory)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Created %d units of %q: observation %v, action %v",
		p.NumUnits(), title, p.ObservationSpace(), p.ActionSpace())
	return p, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&catalogPath, "catalog", "titles.yaml", "Path to the title catalog")
	pf.StringVar(&title, "title", "corridor", "Title to simulate")
	pf.IntVar(&numEnvs, "num-envs", 8, "Number of units stepped together")
	pf.Int64Var(&seed, "seed", 42, "Master seed for unit seeds and random actions")
	pf.StringVar(&assetPath, "asset", "", "Asset file overriding the catalog's asset for every unit")
	pf.StringVar(&traceLevel, "trace-level", "none", "Pipeline trace level (none, calls)")

	// Preprocessing
	pf.IntVar(&obsHeight, "obs-height", 84, "Observation height in pixels")
	pf.IntVar(&obsWidth, "obs-width", 84, "Observation width in pixels")
	pf.IntVar(&frameSkip, "frame-skip", 4, "Console frames per action")
	pf.BoolVar(&maxPool, "maxpool", true, "Max-pool the last two frames of each step")
	pf.BoolVar(&grayscale, "grayscale", true, "Emit luminance instead of RGB")
	pf.IntVar(&stackNum, "stack-num", 4, "Number of stacked frames per observation")
	pf.BoolVar(&channelsFirst, "channels-first", false, "Emit (C, H, W) instead of (H, W, C)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(titlesCmd)
}
