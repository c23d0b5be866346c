package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/daemonctl"
	"slidecast/internal/daemonrun"
	"slidecast/internal/deps"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the slidecast daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.client(), exe, daemonLaunchOptions(ctx, startLogLevel), 10*time.Second)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the slidecast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.client(), ctx.configValue(), 15*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the slidecast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client := ctx.client()
			_, stopErr := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), 15*time.Second)
			if stopErr != nil && !errors.Is(stopErr, daemonctl.ErrDaemonNotRunning) {
				return stopErr
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, restartLogLevel), 10*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.client(), ctx.configValue())
			if err != nil {
				return ctx.wrapDaemonError(err)
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			printStatus(stdout, status, ctx.apiAddress(), shouldColorize(stdout))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the slidecast daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func printStatus(w io.Writer, status api.StatusResponse, address string, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	if status.Running {
		detail := fmt.Sprintf("pid %d at %s since %s", status.PID, address, status.StartedAt.Local().Format(time.DateTime))
		fmt.Fprintln(w, renderStatusLine("Daemon", statusOK, detail, colorize))
		workers := fmt.Sprintf("%d/%d busy, %d processed", status.Workers.Busy, status.Workers.Workers, status.Workers.Processed)
		fmt.Fprintln(w, renderStatusLine("Render workers", passFail(status.Workers.Running), workers, colorize))
		if status.Workers.LastError != "" {
			fmt.Fprintln(w, renderStatusLine("Last render error", statusWarn, status.Workers.LastError, colorize))
		}
	} else {
		fmt.Fprintln(w, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Jobs database", statusInfo, status.JobsDBPath, colorize))
	for _, msg := range status.Errors {
		fmt.Fprintln(w, renderStatusLine("Error", statusError, msg, colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(w, line)
	}
	for _, check := range status.Preflight {
		fmt.Fprintln(w, renderStatusLine(check.Name, passFail(check.Passed), check.Detail, colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(w, line)
	}
	q := status.Queue
	fmt.Fprint(w, renderTable(
		[]column{{"Backend", alignLeft}, {"Ready", alignRight}, {"Delayed", alignRight}, {"Leased", alignRight}, {"Dead letters", alignRight}},
		[][]string{{q.Backend, strconv.Itoa(q.Ready), strconv.Itoa(q.Delayed), strconv.Itoa(q.Leased), strconv.Itoa(q.DeadLetters)}},
	))
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(w, line)
	}
	j := status.Jobs
	if j.Total == 0 {
		fmt.Fprintln(w, "No render jobs")
		return
	}
	rows := [][]string{
		{"queued", strconv.Itoa(j.Queued)},
		{"processing", strconv.Itoa(j.Processing)},
		{"completed", strconv.Itoa(j.Completed)},
		{"failed", strconv.Itoa(j.Failed)},
		{"cancelled", strconv.Itoa(j.Cancelled)},
		{"total", strconv.Itoa(j.Total)},
	}
	fmt.Fprint(w, renderTable([]column{{"Status", alignLeft}, {"Count", alignRight}}, rows))
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = dep.Version
			}
			if dep.Command != "" {
				message = fmt.Sprintf("%s (command: %s)", message, dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}
