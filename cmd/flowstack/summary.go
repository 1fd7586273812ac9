package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/shell/installer"
	"github.com/artpar/flowstack/internal/shell/journal"
	"github.com/artpar/flowstack/internal/shell/sequencer"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...)
}

// printReport prints the phase table of a finished run.
func printReport(w io.Writer, r sequencer.Report) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s: %s", r.RunID, r.Final)))
	fmt.Fprintln(w, phaseTable(r.Phases))
	if len(r.Missing) > 0 {
		fmt.Fprintln(w, "Missing: "+strings.Join(r.Missing, ", "))
	}
}

// printAccess prints where to reach the services.
func printAccess(w io.Writer, urls []installer.AccessURL, credentialsFile string, unverified []string) {
	if len(urls) == 0 {
		return
	}
	t := newTable("SERVICE", "URL")
	for _, u := range urls {
		t.Row(u.Service, u.URL)
	}
	fmt.Fprintln(w, t)
	fmt.Fprintln(w, mutedStyle.Render("Credentials: "+credentialsFile))
	if len(unverified) > 0 {
		fmt.Fprintln(w, "DNS not pointing at this host yet: "+strings.Join(unverified, ", "))
	}
}

// printRuns prints the journal listing.
func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := newTable("RUN", "STARTED", "COMMAND", "NAME", "FINAL", "DURATION", "MISSING")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.Started.Local().Format(time.DateTime),
			r.Command,
			r.Installation,
			string(r.Final),
			r.Duration().Round(time.Second).String(),
			strings.Join(r.Missing, ", "),
		)
	}
	fmt.Fprintln(w, t)
}

// printRun prints one journal entry with its phases.
func printRun(w io.Writer, r journal.Run) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s: %s", r.ID, r.Final)))
	fmt.Fprintf(w, "Command:    %s\n", r.Command)
	fmt.Fprintf(w, "Name:       %s\n", r.Installation)
	fmt.Fprintf(w, "Components: %s\n", strings.Join(r.Components, ", "))
	if r.Domain != "" {
		fmt.Fprintf(w, "Domain:     %s\n", r.Domain)
	}
	fmt.Fprintf(w, "Started:    %s (%s)\n", r.Started.Local().Format(time.DateTime), r.Duration().Round(time.Second))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", r.Error)
	}
	fmt.Fprintln(w, phaseTable(r.Phases))
}

func phaseTable(phases []sequencer.PhaseRecord) *table.Table {
	t := newTable("PHASE", "STATUS", "ATTEMPTS", "DURATION", "ERROR")
	for _, p := range phases {
		attempts := ""
		if p.Attempts > 0 {
			attempts = strconv.Itoa(p.Attempts)
		}
		t.Row(p.Name, string(p.Status), attempts, p.Duration.Round(time.Millisecond).String(), p.Error)
	}
	return t
}
