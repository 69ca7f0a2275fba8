package output

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// OutcomeRow is one line of the run summary table.
type OutcomeRow struct {
	Index  int
	Email  string
	Name   string
	Sent   bool
	Reason string
}

func WriteOutcomeTable(w io.Writer, rows []OutcomeRow) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tEMAIL\tNAME\tSTATUS\tREASON")
	for _, r := range rows {
		status := "sent"
		if !r.Sent {
			status = "failed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", strconv.Itoa(r.Index+1), dash(r.Email), dash(r.Name), status, dash(r.Reason))
	}
	_ = tw.Flush()
}

// WriteSummary prints the closing "sent/failed" line of a run.
func WriteSummary(w io.Writer, sent, failed int) {
	_, _ = fmt.Fprintf(w, "%d sent, %d failed\n", sent, failed)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
