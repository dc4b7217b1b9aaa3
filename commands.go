package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evanofslack/ddns-sync/internal/propagation"
	"github.com/evanofslack/ddns-sync/internal/provider/cloudflare"
	"github.com/evanofslack/ddns-sync/internal/state"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the Cloudflare API token is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			zones, err := cloudflare.NewZones(a.cfg.Cloudflare, a.httpClient)
			if err != nil {
				return err
			}
			status, err := zones.VerifyToken(cmd.Context())
			if err != nil {
				fmt.Fprintln(os.Stderr, color.RedString("Token check failed: %v", err))
				return err
			}
			fmt.Println(color.GreenString("Token is %s", status))
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded outcome for each domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			sm, err := state.New(a.cfg.StatePath, a.metrics)
			if err != nil {
				slog.Error("Failed to open history store", "path", a.cfg.StatePath, "error", err)
				return err
			}
			defer sm.Close()

			history, err := sm.LoadHistory(cmd.Context())
			if err != nil {
				return err
			}
			printHistory(os.Stdout, history)
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare what public DNS serves with the current public address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			d, err := a.discoverer()
			if err != nil {
				return err
			}
			addr, err := d.Discover(cmd.Context())
			if err != nil {
				slog.Error("Failed to discover address", "error", err)
				return err
			}

			domains := make([]string, 0, len(a.cfg.Domains))
			for _, dom := range a.cfg.Domains {
				domains = append(domains, dom.Name)
			}

			checker := propagation.New()
			defer checker.Close()
			printCheck(os.Stdout, addr.String(), checker.Check(cmd.Context(), domains, addr.String()))
			return nil
		},
	}
}

func statusColor(status string) func(format string, a ...interface{}) string {
	switch status {
	case "noop":
		return color.GreenString
	case "updated":
		return color.CyanString
	case "failed":
		return color.RedString
	}
	return color.YellowString
}

func printHistory(w io.Writer, h state.History) {
	if len(h.Domains) == 0 {
		fmt.Fprintln(w, "No outcomes recorded yet.")
		return
	}

	names := make([]string, 0, len(h.Domains))
	for name := range h.Domains {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := h.Domains[name]
		status := r.Status
		if r.DryRun {
			status += " (dry run)"
		}
		line := fmt.Sprintf("%-30s %s  address=%s", name, statusColor(r.Status)("%-18s", status), r.Address)
		if r.Previous != "" && r.Previous != r.Address {
			line += " previous=" + r.Previous
		}
		if r.Reason != "" {
			line += " reason=" + r.Reason
		}
		line += " checked=" + time.Unix(r.CheckedAt, 0).UTC().Format(time.RFC3339)
		fmt.Fprintln(w, line)
		if r.Error != "" {
			fmt.Fprintln(w, "    "+color.RedString("%s", r.Error))
		}
	}
}

func printCheck(w io.Writer, addr string, results []propagation.Result) {
	fmt.Fprintf(w, "Public address: %s\n", addr)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%-30s %s %v\n", r.Domain, color.RedString("error"), r.Err)
		case r.Matches:
			fmt.Fprintf(w, "%-30s %s %s\n", r.Domain, color.GreenString("ok"), strings.Join(r.Resolved, ","))
		default:
			resolved := strings.Join(r.Resolved, ",")
			if resolved == "" {
				resolved = "none"
			}
			fmt.Fprintf(w, "%-30s %s %s\n", r.Domain, color.YellowString("stale"), resolved)
		}
	}
}
