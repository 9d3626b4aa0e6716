package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hperssn/stride/internal/config"
	"github.com/hperssn/stride/internal/domain"
	"github.com/hperssn/stride/internal/runner"
	"github.com/hperssn/stride/internal/sensor"
)

var (
	simEvents   string
	simDuration string
	simInterval string
	simGap      time.Duration
	simWait     bool
	simVerbose  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one local session from recorded sensor values",
	Long: `Run a single session against a recorded step detector stream, one value
per line. The run stops at end of input unless --wait is given, in which case
it runs until the timer elapses.`,
	Example: `  stride simulate --events walk.txt --interval 100ms
  printf '1\n0\n1\n' | stride simulate --duration 10s`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simEvents, "events", "-", "File of sensor values, - for stdin")
	simulateCmd.Flags().StringVar(&simDuration, "duration", "", "Session length (overrides session.duration)")
	simulateCmd.Flags().StringVar(&simInterval, "interval", "", "Wall time of one counted second (overrides session.tick_interval)")
	simulateCmd.Flags().DurationVar(&simGap, "gap", 50*time.Millisecond, "Delay between replayed sensor values")
	simulateCmd.Flags().BoolVar(&simWait, "wait", false, "Keep running until the timer elapses")
	simulateCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Log session transitions")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rc := sessionConfig(cfg)
	if simDuration != "" {
		d, err := time.ParseDuration(simDuration)
		if err != nil || d < time.Second {
			return fmt.Errorf("invalid --duration %q", simDuration)
		}
		rc.Duration = d
	}
	if simInterval != "" {
		d, err := time.ParseDuration(simInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --interval %q", simInterval)
		}
		rc.Interval = d
	}

	readings, err := readEvents(cmd.InOrStdin(), simEvents)
	if err != nil {
		return err
	}

	logger := setupLogger(config.LoggingConfig{Format: "text", Level: "warn"}, cmd.ErrOrStderr())
	if simVerbose {
		logger = logger.Level(zerolog.DebugLevel)
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	feed := sensor.NewFeed()
	ctrl, err := runner.NewController(cmd.Context(), domain.NewSession("", "simulator"), feed, rc, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	out := cmd.OutOrStdout()
	snapshots, unsubscribe := ctrl.Subscribe()
	finished := make(chan struct{})
	printed := make(chan struct{})
	go printProgress(out, snapshots, finished, printed)

	if _, err := ctrl.Start(); err != nil {
		unsubscribe()
		return err
	}

	// Interrupts end the run early but still produce a summary.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sensor.Replay(ctx, feed, readings, simGap)

	if simWait {
		select {
		case <-finished:
		case <-ctx.Done():
		}
	}

	if ctrl.Session().IsRunning() {
		if _, err := ctrl.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			unsubscribe()
			return err
		}
	}

	h, err := ctrl.Show()
	unsubscribe()
	<-printed
	if err != nil {
		return err
	}

	s := ctrl.Session()
	if s.StopReason == domain.StopStepCap {
		color.New(color.FgYellow, color.Bold).Fprintln(out, "Step limit reached, run stopped.")
	}
	printSummary(out, domain.Summarize(h), h.StepCount)
	return nil
}

func readEvents(stdin io.Reader, path string) ([]sensor.Reading, error) {
	if path == "" || path == "-" {
		return sensor.ParseValues(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	return sensor.ParseValues(f)
}

// printProgress prints one line per elapsed second. finished is closed the
// first time a stopped snapshot arrives.
func printProgress(w io.Writer, snapshots <-chan domain.Session, finished, printed chan<- struct{}) {
	defer close(printed)

	last := -1
	stopped := false
	for s := range snapshots {
		if s.State == domain.StateRunning && s.ElapsedSeconds != last {
			last = s.ElapsedSeconds
			fmt.Fprintf(w, "%s  %5d steps\n", s.ElapsedText, s.StepCount)
		}
		if s.IsFinished() && !stopped {
			stopped = true
			close(finished)
		}
	}
}
