// Package commands implements CLI command handlers for sensorstats.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sensorstats/internal/config"
	"github.com/Sumatoshi-tech/sensorstats/internal/observability"
	"github.com/Sumatoshi-tech/sensorstats/pkg/version"
)

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath   string
	input        string
	outputPrefix string
	chunkSize    int
	workers      int
	plot         bool
	verbose      bool
	quiet        bool
	noOutliers   bool

	site      string
	device    string
	metric    string
	timeStart string
	timeEnd   string

	snapshotEnabled  bool
	snapshotDir      string
	snapshotInterval int
	resume           bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Aggregate a CSV file of sensor readings",
		Long: "Aggregate a CSV file of sensor readings into per-group statistics,\n" +
			"top-10 rankings, and an optional outlier report.",
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: .sensorstats.yaml in CWD or $HOME)")
	cmd.Flags().StringVarP(&rc.input, "input", "i", "", "Input CSV file")
	cmd.Flags().StringVarP(&rc.outputPrefix, "output-prefix", "o", "", "Prefix for generated artifact file names")
	cmd.Flags().IntVar(&rc.chunkSize, "chunk-size", 0, "Rows per processing block (0 = config default)")
	cmd.Flags().IntVar(&rc.workers, "workers", 0, "Number of parallel fold workers (0 = config default)")
	cmd.Flags().BoolVar(&rc.plot, "plot", false, "Write an HTML chart report")
	cmd.Flags().BoolVarP(&rc.verbose, "verbose", "v", false, "Verbose (debug) logging")
	cmd.Flags().BoolVarP(&rc.quiet, "quiet", "q", false, "Suppress terminal report output")
	cmd.Flags().BoolVar(&rc.noOutliers, "no-outliers", false, "Skip the outlier detection pass")

	cmd.Flags().StringVar(&rc.site, "site", "", "Only include readings from this site")
	cmd.Flags().StringVar(&rc.device, "device", "", "Only include readings from this device")
	cmd.Flags().StringVar(&rc.metric, "metric", "", "Only include readings for this metric (canonical form)")
	cmd.Flags().StringVar(&rc.timeStart, "time-start", "", "Inclusive lower timestamp bound")
	cmd.Flags().StringVar(&rc.timeEnd, "time-end", "", "Inclusive upper timestamp bound")

	cmd.Flags().BoolVar(&rc.snapshotEnabled, "snapshot", false, "Persist aggregation state for resumable runs")
	cmd.Flags().StringVar(&rc.snapshotDir, "snapshot-dir", "", "Snapshot directory")
	cmd.Flags().IntVar(&rc.snapshotInterval, "snapshot-interval", 0, "Blocks between checkpoints (0 = config default)")
	cmd.Flags().BoolVar(&rc.resume, "resume", false, "Resume from a matching snapshot if available")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := rc.loadConfig(cmd, args)
	if err != nil {
		return err
	}

	criteria, err := cfg.BuildCriteria()
	if err != nil {
		return err
	}

	providers, err := observability.Init(rc.observabilityConfig(cfg))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	ctx := cmd.Context()
	defer func() {
		if shutdownErr := providers.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown failed", "error", shutdownErr)
		}
	}()

	run := &runState{
		cfg:       cfg,
		criteria:  criteria,
		providers: providers,
		out:       cmd.OutOrStdout(),
		quiet:     rc.quiet,
	}

	return run.execute(ctx)
}

// loadConfig merges file/env configuration with explicit flags; a flag set on
// the command line wins over the config file.
func (rc *RunCommand) loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Input = args[0]
	}

	flags := cmd.Flags()

	if flags.Changed("input") {
		cfg.Input = rc.input
	}

	if flags.Changed("output-prefix") {
		cfg.OutputPrefix = rc.outputPrefix
	}

	if flags.Changed("chunk-size") {
		cfg.ChunkSize = rc.chunkSize
	}

	if flags.Changed("workers") {
		cfg.Workers = rc.workers
	}

	if flags.Changed("plot") {
		cfg.Plot = rc.plot
	}

	if flags.Changed("no-outliers") {
		cfg.Outliers.Enabled = !rc.noOutliers
	}

	if flags.Changed("site") {
		cfg.Filter.Site = rc.site
	}

	if flags.Changed("device") {
		cfg.Filter.Device = rc.device
	}

	if flags.Changed("metric") {
		cfg.Filter.Metric = rc.metric
	}

	if flags.Changed("time-start") {
		cfg.Filter.TimeStart = rc.timeStart
	}

	if flags.Changed("time-end") {
		cfg.Filter.TimeEnd = rc.timeEnd
	}

	if flags.Changed("snapshot") {
		cfg.Snapshot.Enabled = rc.snapshotEnabled
	}

	if flags.Changed("snapshot-dir") {
		cfg.Snapshot.Dir = rc.snapshotDir
	}

	if flags.Changed("snapshot-interval") {
		cfg.Snapshot.IntervalBlocks = rc.snapshotInterval
	}

	if flags.Changed("resume") {
		cfg.Snapshot.Resume = rc.resume
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (rc *RunCommand) observabilityConfig(cfg *config.Config) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.LogJSON = cfg.Observability.LogJSON

	if rc.verbose {
		obsCfg.LogLevel = slog.LevelDebug
	}

	if rc.quiet {
		obsCfg.LogLevel = slog.LevelWarn
	}

	return obsCfg
}

// artifactSuffixes name the generated files, appended to the output prefix.
const (
	aggregatedSuffix = "_aggregated.csv"
	topMeanSuffix    = "_top10_mean.csv"
	topStdSuffix     = "_top10_std.csv"
	outliersSuffix   = "_outliers.csv"
	chartsSuffix     = "_report.html"
	manifestSuffix   = "_manifest.yaml"
)

func writeFileArtifact(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
