package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/control/client"
	"github.com/vpittamp/hyprdist/internal/engine"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("hdctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	socket := fs.String("socket", "", "path to hyprdist control socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	asJSON := fs.Bool("json", false, "print raw JSON payloads")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <command> [args]\n", fs.Name())
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  status\t\t\tshow daemon phase, outputs, and counters")
		fmt.Fprintln(fs.Output(), "  history [--limit N]\tshow recent reassignment results")
		fmt.Fprintln(fs.Output(), "  migrations [--workspace N]\tshow window migration records")
		fmt.Fprintln(fs.Output(), "  rules\t\t\tshow the distribution rule table")
		fmt.Fprintln(fs.Output(), "  config\t\t\tshow the daemon's effective configuration")
		fmt.Fprintln(fs.Output(), "  reassign\t\t\tqueue an immediate reassignment")
		fmt.Fprintln(fs.Output(), "  reload\t\t\ttrigger a live config reload")
		fmt.Fprintln(fs.Output(), "  check --config <path>\tvalidate a configuration file")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}

	if args[0] == "check" {
		return runCheck(args[1:], os.Stdout, os.Stderr)
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "status":
		return runStatus(ctx, cli, *asJSON)
	case "history":
		return runHistory(ctx, cli, args[1:], *asJSON)
	case "migrations":
		return runMigrations(ctx, cli, args[1:], *asJSON)
	case "rules":
		return runRules(ctx, cli, *asJSON)
	case "config":
		return runConfigShow(ctx, cli, *asJSON)
	case "reassign":
		return runReassign(ctx, cli)
	case "reload":
		return runReload(ctx, cli)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return fmt.Errorf("check requires --config <path>")
	}

	if _, err := config.Load(*configPath); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Configuration OK")
	return nil
}

func runStatus(ctx context.Context, cli *client.Client, asJSON bool) error {
	report, err := cli.Status(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(report)
	}
	fmt.Printf("Phase: %s\n", report.Phase)
	fmt.Printf("Workspaces: %d\n", report.WorkspaceCount)
	if !report.LastUpdated.IsZero() {
		fmt.Printf("Last updated: %s\n", report.LastUpdated.Format(time.RFC3339))
	}
	for _, out := range report.Outputs {
		fmt.Printf("  %s (%s): workspaces %s\n", out.Name, out.Role, joinInts(out.Workspaces))
	}
	if last := report.LastResult; last != nil {
		verdict := "ok"
		if !last.Success {
			verdict = "failed: " + last.ErrorMessage
		}
		fmt.Printf("Last operation: %s (%s, %d workspaces, %dms) %s\n",
			last.Trigger, last.Timestamp.Format(time.RFC3339), last.WorkspacesReassigned, last.DurationMs, verdict)
	}
	totals := report.Metrics.Totals
	fmt.Printf("Totals: %d operations, %d failures, %d workspaces moved, %d windows migrated\n",
		totals.Operations, totals.Failures, totals.WorkspacesReassigned, totals.WindowsMigrated)
	return nil
}

func runHistory(ctx context.Context, cli *client.Client, args []string, asJSON bool) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 0, "maximum number of results (0 for all retained)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	result, err := cli.History(ctx, *limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(result)
	}
	if len(result.Results) == 0 {
		fmt.Println("No reassignments recorded")
		return nil
	}
	for _, r := range result.Results {
		printResult(r)
	}
	return nil
}

func runMigrations(ctx context.Context, cli *client.Client, args []string, asJSON bool) error {
	fs := flag.NewFlagSet("migrations", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	workspace := fs.Int("workspace", 0, "only show migrations for this workspace")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	result, err := cli.Migrations(ctx, *workspace)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(result)
	}
	if len(result.Migrations) == 0 {
		fmt.Println("No migrations recorded")
		return nil
	}
	for _, m := range result.Migrations {
		target := m.NewOutput
		if target == "" {
			target = "?"
		}
		fmt.Printf("%s  ws %d  %s (%s): %s -> %s\n",
			m.Timestamp.Format(time.RFC3339), m.Workspace, m.WindowID, m.WindowClass, m.OldOutput, target)
	}
	return nil
}

func runRules(ctx context.Context, cli *client.Client, asJSON bool) error {
	report, err := cli.Rules(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(report)
	}
	fmt.Printf("Workspaces: %d, debounce %dms, IPC timeout %dms\n",
		report.WorkspaceCount, report.DebounceMs, report.IPCTimeoutMs)
	for _, rule := range report.Rules {
		fmt.Printf("  %s monitors:\n", rule.Monitors)
		for _, span := range rule.Spans {
			if span.From == span.To {
				fmt.Printf("    %s: workspace %d\n", span.Role, span.From)
			} else {
				fmt.Printf("    %s: workspaces %d-%d\n", span.Role, span.From, span.To)
			}
		}
	}
	return nil
}

func runConfigShow(ctx context.Context, cli *client.Client, asJSON bool) error {
	cfg, err := cli.Config(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cfg)
	}
	fmt.Printf("workspaceCount: %d\n", cfg.WorkspaceCount)
	fmt.Printf("debounceMs: %d\n", cfg.DebounceMs)
	fmt.Printf("ipcTimeoutMs: %d\n", cfg.IPCTimeoutMs)
	fmt.Printf("historySize: %d\n", cfg.HistorySize)
	fmt.Printf("stateFile: %s\n", cfg.StateFile)
	fmt.Printf("assignmentsFile: %s\n", cfg.AssignmentsFile)
	fmt.Printf("logLevel: %s\n", cfg.LogLevel)
	return nil
}

func runReassign(ctx context.Context, cli *client.Client) error {
	if err := cli.Reassign(ctx); err != nil {
		return err
	}
	fmt.Println("Reassignment requested")
	return nil
}

func runReload(ctx context.Context, cli *client.Client) error {
	if err := cli.Reload(ctx); err != nil {
		return err
	}
	fmt.Println("Reload requested")
	return nil
}

func printResult(r engine.ReassignmentResult) {
	verdict := "ok"
	if !r.Success {
		verdict = "failed: " + r.ErrorMessage
	}
	fmt.Printf("%s  %-18s %d monitors, %d workspaces, %d windows, %d command failures, %dms  %s\n",
		r.Timestamp.Format(time.RFC3339), r.Trigger, r.MonitorCount,
		r.WorkspacesReassigned, r.WindowsMigrated, r.CommandFailures, r.DurationMs, verdict)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
