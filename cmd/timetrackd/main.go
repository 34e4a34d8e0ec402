// Package main is the CLI entry point for timetrackd.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/timetrack/internal/config"
	"github.com/eliteGoblin/focusd/timetrack/internal/daemon"
	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
	"github.com/eliteGoblin/focusd/timetrack/internal/infra"
	"github.com/eliteGoblin/focusd/timetrack/internal/policy"
	"github.com/eliteGoblin/focusd/timetrack/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "1.0.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timetrackd",
	Short: "Working hour tracker with a Pomodoro timer",
	Long: `timetrackd is a local daemon that samples the foreground window,
attributes the time to working or playing according to a working list,
and runs a Pomodoro cycle with desktop notifications.

The daemon is controlled over a unix datagram socket; the other
subcommands are thin clients of that socket.`,
	Version:      Version,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in this process",
	Long: `Binds the command socket and serves commands until a quit command
or SIGINT/SIGTERM arrives. Use 'start' to run it in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var runCmd = &cobra.Command{
	Use:       "run [all|focus|pomo]",
	Short:     "Start focus tracking and/or the Pomodoro timer",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "focus", "pomo"},
	RunE:      targetCommand("run"),
}

var stopCmd = &cobra.Command{
	Use:       "stop [all|focus|pomo]",
	Short:     "Stop focus tracking and/or the Pomodoro timer",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "focus", "pomo"},
	RunE:      targetCommand("stop"),
}

var reportCmd = &cobra.Command{
	Use:       "report [all|working|playing|summary]",
	Short:     "Show the working hour report",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "working", "playing", "summary"},
	RunE:      runReport,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear focus accounting and restart a running Pomodoro cycle",
	Args:  cobra.NoArgs,
	RunE:  simpleCommand("reset"),
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Shut the daemon down",
	Args:  cobra.NoArgs,
	RunE:  simpleCommand("quit"),
}

var sendCmd = &cobra.Command{
	Use:   "send <command> [args...]",
	Short: "Send raw command tokens to the daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the working list",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored report snapshots",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the daemon with the graphical session (systemd user unit)",
	Args:  cobra.NoArgs,
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the systemd user unit",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	socketPath   string
	foreground   bool
	runOnStart   bool
	jsonOutput   bool
	historyLimit int
	replyTimeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $TIMETRACK_CONFIG or timetracker.conf)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Command socket (overrides config)")

	serveCmd.Flags().BoolVar(&foreground, "foreground", false, "Also log to stderr")
	serveCmd.Flags().BoolVar(&runOnStart, "run", false, "Start focus tracking and the Pomodoro timer immediately")
	startCmd.Flags().BoolVar(&runOnStart, "run", false, "Start focus tracking and the Pomodoro timer immediately")
	installCmd.Flags().BoolVar(&runOnStart, "run", false, "Start focus tracking and the Pomodoro timer with the daemon")
	reportCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	reportCmd.Flags().DurationVar(&replyTimeout, "timeout", daemon.DefaultReplyTimeout, "How long to wait for the daemon")
	sendCmd.Flags().DurationVar(&replyTimeout, "timeout", daemon.DefaultReplyTimeout, "How long to wait for a report reply")
	statusCmd.Flags().DurationVar(&replyTimeout, "timeout", daemon.DefaultReplyTimeout, "How long to wait for the daemon")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 24, "Number of snapshots to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print snapshots as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(serveCmd, startCmd, statusCmd)
	rootCmd.AddCommand(runCmd, stopCmd, reportCmd, resetCmd, quitCmd, sendCmd)
	rootCmd.AddCommand(rulesCmd, historyCmd, installCmd, uninstallCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if socketPath != "" {
		cfg.Daemon.SocketPath = socketPath
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.NewPaths(cfg.DataDir())
	if err := paths.Ensure(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := createLogger(cfg, paths, foreground)
	defer func() { _ = logger.Sync() }()
	if cfg.Path == "" {
		logger.Warn("no config file loaded, using defaults",
			zap.String("path", config.ResolvePath(configPath)))
	}

	a, err := buildApp(cfg, paths, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return err
	}
	if err := a.server.Listen(); err != nil {
		a.close()
		logger.Error("failed to start", zap.Error(err))
		return err
	}

	info := domain.DaemonInfo{
		PID:        os.Getpid(),
		SocketPath: cfg.Daemon.SocketPath,
		StartedAt:  time.Now(),
		Version:    Version,
	}
	if err := a.registry.Register(info); err != nil {
		logger.Warn("failed to register daemon", zap.Error(err))
	}
	a.pruneSnapshots(info.StartedAt)

	logger.Info("daemon started",
		zap.String("socket", info.SocketPath),
		zap.String("data_dir", paths.DataDir),
		zap.String("version", Version))
	if runOnStart {
		a.manager.Run(domain.TargetAll)
	}

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("received shutdown signal")
		case <-a.server.Done():
			logger.Info("quit requested")
		}
		return nil
	})

	err = g.Wait()
	a.close()
	logger.Info("daemon stopped")
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.NewPaths(cfg.DataDir())
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(paths.Registry)

	if info, _ := infra.LiveDaemon(registry, pm); info != nil {
		fmt.Printf("timetrackd is already running (pid %d)\n", info.PID)
		return nil
	}

	var serveArgs []string
	if configPath != "" {
		serveArgs = append(serveArgs, "--config", configPath)
	}
	if socketPath != "" {
		serveArgs = append(serveArgs, "--socket", socketPath)
	}
	if runOnStart {
		serveArgs = append(serveArgs, "--run")
	}
	pid, err := daemon.StartDetached(serveArgs...)
	if err != nil {
		return err
	}

	// Wait a moment for the daemon to register
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, _ := infra.LiveDaemon(registry, pm); info != nil && info.PID == pid {
			fmt.Printf("timetrackd started (pid %d, socket %s)\n", pid, info.SocketPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Printf("timetrackd spawned (pid %d) but has not registered yet; see %s\n", pid, paths.LogPath)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.NewPaths(cfg.DataDir())
	info, err := infra.LiveDaemon(infra.NewFileRegistry(paths.Registry), infra.NewProcessManager())
	if err != nil {
		return err
	}

	fmt.Println("\n=== timetrackd Status ===")
	if info == nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'timetrackd start' to start the daemon.")
		return nil
	}

	fmt.Println("Status: RUNNING")
	fmt.Printf("PID: %d\n", info.PID)
	fmt.Printf("Socket: %s\n", info.SocketPath)
	fmt.Printf("Started: %s (%s)\n", info.StartedAt.Format(time.DateTime), humanize.Time(info.StartedAt))
	if info.Version != "" {
		fmt.Printf("Version: %s\n", info.Version)
	}

	reply, err := daemon.Send(info.SocketPath, "report", []string{string(domain.ReportSummary)}, true, replyTimeout)
	switch {
	case err != nil:
		fmt.Printf("\nDaemon not answering: %v\n", err)
	case reply.Report != nil:
		fmt.Println()
		fmt.Println(usecase.FormatFocus(reply.Report.Focus))
		fmt.Printf("Pomodoro     :  %s\n", usecase.FormatPomodoro(reply.Report.Pomodoro))
	}
	fmt.Println("=========================")
	return nil
}

func targetCommand(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			if _, err := domain.ParseTarget(args[0]); err != nil {
				return err
			}
		}
		return send(name, args)
	}
}

func simpleCommand(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return send(name, args)
	}
}

func send(name string, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, err = daemon.Send(cfg.Daemon.SocketPath, name, args, false, 0)
	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		if _, err := domain.ParseReportKind(args[0]); err != nil {
			return err
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reply, err := daemon.Send(cfg.Daemon.SocketPath, "report", args, true, replyTimeout)
	if err != nil {
		return err
	}
	return printReply(reply)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	args = splitTokens(args)
	if len(args) == 0 {
		return errors.New("empty command")
	}
	wait := args[0] == "report"
	reply, err := daemon.Send(cfg.Daemon.SocketPath, args[0], args[1:], wait, replyTimeout)
	if err != nil || reply == nil {
		return err
	}
	return printReply(reply)
}

func printReply(reply *domain.Reply) error {
	if !reply.OK {
		return errors.New(reply.Error)
	}
	if reply.Report == nil {
		return nil
	}
	if jsonOutput {
		data, err := json.MarshalIndent(reply.Report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printReport(*reply.Report)
	return nil
}

func printReport(rep domain.Report) {
	fmt.Println(usecase.FormatFocus(rep.Focus))
	for _, class := range sortedKeys(rep.Focus.Targets) {
		target := rep.Focus.Targets[class]
		fmt.Printf("  %-20s %s\n", class, usecase.FormatDuration(target.Total))
		for _, title := range sortedKeys(target.Details) {
			fmt.Printf("    %-40s %s\n", truncate(title, 40), usecase.FormatDuration(target.Details[title]))
		}
	}
	fmt.Printf("Pomodoro     :  %s\n", usecase.FormatPomodoro(rep.Pomodoro))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.WorkingListPath()
	list := policy.LoadWorkingList(path, zap.NewNop())

	fmt.Printf("\n=== Working List (%s) ===\n", path)
	if list.Len() == 0 {
		fmt.Println("No rules loaded: everything counts as playing time.")
	}
	for i, r := range list.Rules() {
		fmt.Printf("\n[%d] class: %s\n", i+1, r.Class)
		if r.Names == nil {
			fmt.Println("  any title")
			continue
		}
		if len(r.Names) == 0 {
			fmt.Println("  no title (always playing)")
			continue
		}
		fmt.Println("  titles:")
		for _, n := range r.Names {
			fmt.Printf("    - %s\n", n)
		}
	}
	fmt.Println("\n==========================")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.NewPaths(cfg.DataDir())
	provider := infra.NewFileKeyProvider(paths.KeyFile)
	if !provider.KeyExists() {
		fmt.Println("No snapshots stored yet.")
		return nil
	}
	store, err := infra.OpenSnapshotStore(paths.SnapshotDB, provider)
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]json.RawMessage, 0, len(snaps))
		for _, s := range snaps {
			entry, err := json.Marshal(map[string]any{
				"id":      s.ID,
				"takenAt": s.TakenAt.Format(time.RFC3339),
				"reason":  s.Reason,
				"report":  json.RawMessage(s.Payload),
			})
			if err != nil {
				return err
			}
			out = append(out, entry)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots stored yet.")
		return nil
	}
	fmt.Printf("%-16s %-14s %-9s %-16s %-16s %s\n", "TAKEN", "AGO", "REASON", "TOTAL", "WORKING", "PLAYING")
	for _, s := range snaps {
		fmt.Printf("%-16s %-14s %-9s %-16s %-16s %s\n",
			s.TakenAt.Local().Format("2006-01-02 15:04"),
			humanize.Time(s.TakenAt),
			s.Reason,
			usecase.FormatDuration(s.Total),
			usecase.FormatDuration(s.Working),
			usecase.FormatDuration(s.Playing))
	}
	if historyLimit > 0 && len(snaps) == historyLimit {
		fmt.Printf("\n(showing the latest %s; use --limit 0 for all)\n", humanize.Comma(int64(historyLimit)))
	}
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	var serveArgs []string
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
		serveArgs = append(serveArgs, "--config", abs)
	}
	if socketPath != "" {
		serveArgs = append(serveArgs, "--socket", socketPath)
	}
	if runOnStart {
		serveArgs = append(serveArgs, "--run")
	}

	unit := infra.NewSystemdUnit(&infra.ExecRunner{})
	switch {
	case !unit.IsInstalled():
	case unit.NeedsUpdate(execPath, serveArgs...):
		fmt.Println("Updating existing unit")
	default:
		fmt.Printf("Already installed: %s\n", unit.Path())
		return nil
	}
	if err := unit.Install(cmd.Context(), execPath, serveArgs...); err != nil {
		return fmt.Errorf("failed to install unit: %w", err)
	}
	fmt.Printf("Installed %s\n", unit.Path())
	fmt.Println("timetrackd will start with your next graphical session.")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	unit := infra.NewSystemdUnit(&infra.ExecRunner{})
	if !unit.IsInstalled() {
		fmt.Println("Not installed")
		return nil
	}
	if err := unit.Uninstall(cmd.Context()); err != nil {
		return fmt.Errorf("failed to uninstall unit: %w", err)
	}
	fmt.Printf("Removed %s\n", unit.Path())
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("timetrackd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// splitTokens accepts the command as one quoted argument too.
func splitTokens(args []string) []string {
	if len(args) == 1 {
		return strings.Fields(args[0])
	}
	return args
}
