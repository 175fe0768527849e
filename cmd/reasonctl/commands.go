package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/analysis"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/server"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/temporal"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/workflows"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func (o *rootOptions) load() (*config.ReasoningConfig, error) {
	path := o.configPath
	if path == "" {
		path = config.Path()
	}
	return config.LoadFrom(path)
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "reasonctl",
		Short:         "Run and inspect the confidence-aware reasoning orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to reasoning.yaml (default $REASONING_CONFIG_PATH)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newAnalyzeCmd(),
		newReasonCmd(opts),
		newSubmitCmd(opts),
		newStatsCmd(opts),
		newAuditCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var (
		rc   reasoning.RequestContext
		load float64
	)
	cmd := &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Show the problem analysis for a prompt without running any strategy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("load") {
				rc.SystemLoad = &load
			}
			a := analysis.NewAnalyzer()
			return printJSON(cmd.OutOrStdout(), a.Analyze(strings.Join(args, " "), rc.Normalize()))
		},
	}
	cmd.Flags().StringVar(&rc.Type, "type", "", "request context type, e.g. technical or creative")
	cmd.Flags().Float64Var(&load, "load", 0, "current system load in [0,1]")
	return cmd
}

func newReasonCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout   time.Duration
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "reason [prompt]",
		Short: "Run a prompt through the full pipeline in process",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			svc, err := server.New(ctx, cfg, opts.logger())
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			var prefs *reasoning.Preferences
			if cmd.Flags().Changed("threshold") {
				prefs = &reasoning.Preferences{ConfidenceThreshold: &threshold}
			}
			resp := svc.Orchestrator().ProcessAdvancedReasoning(ctx, strings.Join(args, " "), nil, prefs)
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "confidence threshold for this request")
	return cmd
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		wait           bool
		feedbackWindow time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit [prompt]",
		Short: "Start a durable reasoning workflow on Temporal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := temporal.Dial(ctx, temporal.Options{
				HostPort:    cfg.Temporal.HostPort,
				Namespace:   cfg.Temporal.Namespace,
				MaxAttempts: 3,
			}, opts.logger())
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        "reasoning-" + uuid.NewString(),
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflows.ReasoningWorkflow, workflows.ReasoningWorkflowInput{
				ReasoningInput: activities.ReasoningInput{Prompt: strings.Join(args, " ")},
				FeedbackWindow: feedbackWindow,
			})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow_id=%s run_id=%s\n", run.GetID(), run.GetRunID())
			if !wait {
				return nil
			}
			var res workflows.ReasoningWorkflowResult
			if err := run.Get(ctx, &res); err != nil {
				return fmt.Errorf("workflow failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the workflow completes")
	cmd.Flags().DurationVar(&feedbackWindow, "feedback-window", 0, "keep the workflow open for a feedback signal")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print persisted per-strategy usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("database persistence is disabled; set database.enabled")
			}
			c, err := db.NewClient(cfg.Database.Conn, opts.logger())
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.StrategyStats(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the newest audit trail entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("database persistence is disabled; set database.enabled")
			}
			c, err := db.NewClient(cfg.Database.Conn, opts.logger())
			if err != nil {
				return err
			}
			defer c.Close()

			entries, err := c.RecentAuditLogs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tSESSION\tDETAILS")
			for _, e := range entries {
				details, _ := json.Marshal(e.Details)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.SessionID, details)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printStats(w io.Writer, stats []db.StrategyStat) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tUSES\tAVG CONFIDENCE\tESCALATIONS")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%d\n", s.Strategy, s.Uses, s.AvgConfidence, s.Escalations)
	}
	return tw.Flush()
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if _, err := cfg.Backends.Registry(zap.NewNop()); err != nil {
				return err
			}
			redacted := *cfg
			redacted.Redis.Password = redact(cfg.Redis.Password)
			redacted.Database.Conn.Password = redact(cfg.Database.Conn.Password)
			redacted.HTTP.AuthToken = redact(cfg.HTTP.AuthToken)
			return printJSON(cmd.OutOrStdout(), redacted)
		},
	})
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
