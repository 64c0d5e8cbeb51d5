package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

// writeReport prints the result table, the grand total and any failures.
func writeReport(w io.Writer, report crawler.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NAMESPACE\tPAGES\t")
	for _, res := range report.Results {
		fmt.Fprintf(tw, "%d\t%d\t\n", res.Namespace, res.Amount)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t\n", report.Total)
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	var b strings.Builder
	if len(report.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d namespace(s) failed:\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "  %d [%s] %s\n", f.Namespace, f.Kind, f.Err)
		}
	}
	if len(report.Skipped) > 0 {
		skipped := make([]string, 0, len(report.Skipped))
		for _, ns := range report.Skipped {
			skipped = append(skipped, fmt.Sprint(int(ns)))
		}
		fmt.Fprintf(&b, "\nskipped after interruption: %s\n", strings.Join(skipped, ", "))
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write failure summary: %w", err)
	}
	return nil
}
