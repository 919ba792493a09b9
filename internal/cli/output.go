package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/ledger-balancer/internal/application/service"
)

// PrintJSON writes v to w, indented when pretty is set.
func PrintJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintHeader prints the application header
func PrintHeader(w io.Writer, addr string, gatewayEnabled bool) {
	mode := "REPORT-ONLY"
	if gatewayEnabled {
		mode = "SAVE"
	}
	fmt.Fprintf(w, "ledger-balancer: listening on %s (%s mode)\n", addr, mode)
}

// PrintJobSummary prints one line per job and the totals, for the shutdown log.
func PrintJobSummary(w io.Writer, jobs []*service.BalanceJob) {
	if len(jobs) == 0 {
		return
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))

	var balanced, skipped, errored int
	for _, job := range jobs {
		fmt.Fprintf(w, "%s  %-9s  session=%s  balanced=%d skipped=%d errors=%d\n",
			job.ID, job.Status, job.Session.ID,
			job.Progress.Balanced, job.Progress.Skipped, job.Progress.Errored)
		balanced += job.Progress.Balanced
		skipped += job.Progress.Skipped
		errored += job.Progress.Errored
	}

	fmt.Fprintf(w, "Summary: Jobs=%d Balanced=%d Skipped=%d Errors=%d\n", len(jobs), balanced, skipped, errored)
}
