package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hperssn/stride/internal/domain"
)

var (
	summarySteps int
	summaryTime  string
	summaryDate  string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the summary for a finished run",
	Long: `Compute distance and calories for a step count and print them with the
run's elapsed time and date.`,
	Example: `  stride summary --steps 100 --time 01:05 --date 18/10/2026`,
	RunE:    runSummary,
}

func init() {
	summaryCmd.Flags().IntVar(&summarySteps, "steps", 0, "Number of steps counted")
	summaryCmd.Flags().StringVar(&summaryTime, "time", domain.ZeroElapsed, "Elapsed time as MM:SS")
	summaryCmd.Flags().StringVar(&summaryDate, "date", "", "Completion date (default today)")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	if summarySteps < 0 {
		return fmt.Errorf("steps must not be negative, got %d", summarySteps)
	}

	date := summaryDate
	if date == "" {
		date = time.Now().Format(domain.DateLayout)
	}

	printSummary(cmd.OutOrStdout(), domain.Summarize(domain.Handoff{
		ElapsedText:    summaryTime,
		StepCount:      summarySteps,
		CompletionDate: date,
	}), summarySteps)
	return nil
}

func printSummary(w io.Writer, s domain.Summary, steps int) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Run summary")
	fmt.Fprintf(w, "  %-10s %s\n", "Date:", s.Date)
	fmt.Fprintf(w, "  %-10s %s\n", "Time:", s.Time)
	fmt.Fprintf(w, "  %-10s %d\n", "Steps:", steps)
	fmt.Fprintf(w, "  %-10s %s\n", "Distance:", green.Sprint(s.Distance))
	fmt.Fprintf(w, "  %-10s %s\n", "Calories:", green.Sprint(s.Calories))
}
