package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/presence"
	"tools.zach/dev/statuscord/internal/rulepack"
)

func newRunCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the presence daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), *dataDir, cmd.ErrOrStderr())
		},
	}
}

// ///////////////////////////////////////////////
// classify
// ///////////////////////////////////////////////

func newClassifyCmd(dataDir *string) *cobra.Command {
	var title, process string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show how a window would be classified and published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := consoleLogger(cmd.ErrOrStderr(), slog.LevelWarn)
			cfg, err := config.Load(*dataDir, log)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pack := cachedPackRules(*dataDir, log)
			return classify(cmd.OutOrStdout(), cfg, pack, activity.Sample{Title: title, Process: process})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Window title")
	cmd.Flags().StringVar(&process, "process", "", "Process name (required)")
	cmd.MarkFlagRequired("process")
	return cmd
}

// cachedPackRules returns the cached rule pack without touching the network.
func cachedPackRules(dataDir string, log *slog.Logger) []activity.Rule {
	p, err := rulepack.NewLoader(dataDir, log).ReadCache()
	if err != nil {
		return nil
	}
	return rulepack.Sanitize(p.Rules, log)
}

// classify prints the classification of s and the payload a fresh activity
// would publish.
func classify(w io.Writer, cfg *config.Config, pack []activity.Rule, s activity.Sample) error {
	if cfg.IsIgnored(s.Process) {
		_, err := fmt.Fprintf(w, "process %q is ignored by privacy settings; presence would be cleared\n", s.Process)
		return err
	}
	s.Title = cfg.RedactTitle(s.Process, s.Title)

	res := activity.Classify(s, cfg.Rules(pack))
	p := presence.Build(presence.Input{Result: res}, presence.Options{})

	rows := []struct{ k, v string }{
		{"source", string(res.Source)},
		{"match", res.Match},
		{"category", res.Category},
		{"icon", res.Icon},
		{"identity", cfg.ResolveIdentity(res.Identity, res.Category)},
		{"details", p.Details},
		{"state", p.State},
		{"large_text", p.LargeText},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-9s %s\n", r.k+":", r.v); err != nil {
			return err
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// logs
// ///////////////////////////////////////////////

func newLogsCmd(dataDir *string) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := logger.ReadTail(paths.DataDir{Root: *dataDir}.Log(), lines)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}

// ///////////////////////////////////////////////
// config
// ///////////////////////////////////////////////

func newConfigCmd(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage config.toml",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the annotated default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd.OutOrStdout(), *dataDir, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate config.toml without starting the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Reload(*dataDir, consoleLogger(cmd.ErrOrStderr(), slog.LevelWarn))
			if err != nil {
				return err
			}
			if missing := cfg.MissingAppIDs(); len(missing) > 0 {
				return fmt.Errorf("identities without an application id: %v", missing)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "config OK")
			return err
		},
	}

	cmd.AddCommand(initCmd, checkCmd)
	return cmd
}

func initConfig(w io.Writer, dataDir string, force bool) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := paths.DataDir{Root: dataDir}.Config()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, err := fmt.Fprintf(w, "wrote %s\n", path)
	return err
}

// ///////////////////////////////////////////////
// version
// ///////////////////////////////////////////////

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s/%s\n", paths.BinaryName, resolveVersion(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

// consoleLogger logs to w in the daemon's line format.
func consoleLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(logger.NewHandler(w, level))
}
