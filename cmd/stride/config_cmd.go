package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hperssn/stride/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Load the configuration file and environment overrides, validate them and print the result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			red := color.New(color.FgRed, color.Bold)
			red.Fprintln(cmd.ErrOrStderr(), "Configuration invalid")
			return err
		}
		printConfig(cmd, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func printConfig(cmd *cobra.Command, cfg *config.Config) {
	w := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold)
	field := func(name string, value any) {
		fmt.Fprintf(w, "  %-20s %v\n", name+":", value)
	}

	cyan.Fprintln(w, "server")
	field("bind_address", cfg.Server.BindAddress)
	field("http_port", cfg.Server.HTTPPort)
	field("metrics_port", cfg.Server.MetricsPort)
	field("shutdown_timeout", cfg.Server.ShutdownTimeout)

	cyan.Fprintln(w, "session")
	field("duration", cfg.Session.Duration)
	field("tick_interval", cfg.Session.TickInterval)
	field("step_cap", cfg.Session.StepCap)
	field("date_layout", cfg.Session.DateLayout)
	field("idle_eviction", cfg.Session.IdleEviction)
	field("cleanup_interval", cfg.Session.CleanupInterval)
	field("event_buffer", cfg.Session.EventBuffer)

	cyan.Fprintln(w, "summary")
	field("cache_size", cfg.Summary.CacheSize)
	field("cache_ttl", cfg.Summary.CacheTTL)

	cyan.Fprintln(w, "sensor")
	field("enabled", cfg.Sensor.Enabled)
	field("required", cfg.Sensor.Required)

	cyan.Fprintln(w, "logging")
	field("level", cfg.Logging.Level)
	field("format", cfg.Logging.Format)
}
