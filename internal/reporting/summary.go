// internal/reporting/summary.go
package reporting

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// Summary aggregates a run across pages.
type Summary struct {
	Pages      int `json:"pages"`
	Failed     int `json:"failed"`
	Violations int `json:"violations"`
	Warnings   int `json:"warnings"`
	// AverageScores is keyed by audit name, rounded to the nearest integer.
	AverageScores map[string]int `json:"average_scores"`
}

func Summarize(reports []*schemas.PageReport) Summary {
	s := Summary{AverageScores: map[string]int{}}
	sums := map[string]int{}
	counts := map[string]int{}
	for _, r := range reports {
		if r == nil {
			continue
		}
		s.Pages++
		if r.Error != "" {
			s.Failed++
		}
		for _, name := range r.AuditNames() {
			res := r.Audits[name]
			s.Violations += len(res.Findings.Violations)
			s.Warnings += len(res.Findings.Warnings)
			sums[name] += res.Score
			counts[name]++
		}
	}
	for name, n := range counts {
		s.AverageScores[name] = (sums[name] + n/2) / n
	}
	return s
}

// WriteSummary prints one line per page with each audit's score and grade.
func WriteSummary(w io.Writer, reports []*schemas.PageReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tSTATUS\tACCESSIBILITY\tPERFORMANCE\tSECURITY\tERROR")
	for _, r := range reports {
		if r == nil {
			continue
		}
		cols := []string{r.URL, fmt.Sprint(r.StatusCode)}
		for _, name := range []string{schemas.AuditAccessibility, schemas.AuditPerformance, schemas.AuditSecurity} {
			cols = append(cols, scoreCell(r.Audits[name]))
		}
		cols = append(cols, r.Error)
		for i, c := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func scoreCell(res *schemas.AuditResult) string {
	if res == nil {
		return "-"
	}
	return fmt.Sprintf("%d (%s)", res.Score, res.Grade)
}
