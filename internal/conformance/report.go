package conformance

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary counts results by status.
type Summary struct {
	Total   int           `json:"total"`
	Pass    int           `json:"pass"`
	Fail    int           `json:"fail"`
	Skip    int           `json:"skip"`
	Error   int           `json:"error"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}

	for _, r := range results {
		s.Elapsed += r.Duration

		switch r.Status {
		case StatusPass:
			s.Pass++
		case StatusFail:
			s.Fail++
		case StatusSkip:
			s.Skip++
		case StatusError:
			s.Error++
		}
	}

	return s
}

// Err is nil when no case failed or errored.
func (s Summary) Err() error {
	if s.Fail+s.Error == 0 {
		return nil
	}

	return fmt.Errorf("%d failed, %d errored of %d cases: %w", s.Fail, s.Error, s.Total, ErrFailures)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s cases: %s pass, %s fail, %s skip, %s error",
		humanize.Comma(int64(s.Total)),
		humanize.Comma(int64(s.Pass)),
		humanize.Comma(int64(s.Fail)),
		humanize.Comma(int64(s.Skip)),
		humanize.Comma(int64(s.Error)),
	)
}

// FormatTable writes one row per result followed by the summary. Passing
// cases are listed only when verbose is set.
func FormatTable(results []Result, verbose bool, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-6s  %-48s  %-22s  %10s  %s\n", "Status", "Case", "Op", "MS", "Detail")
	fmt.Fprintln(sb, strings.Repeat("-", 100))

	for _, r := range results {
		if r.Status == StatusPass && !verbose {
			continue
		}

		op := r.Op
		if r.Version > 0 {
			op = fmt.Sprintf("%s-%d", r.Op, r.Version)
		}

		detail := r.Message
		if r.Kind != "" && r.Kind != "Internal" {
			detail = r.Kind + ": " + detail
		}

		fmt.Fprintf(sb, "%-6s  %-48s  %-22s  %10.2f  %s\n",
			r.Status, r.Name, op, float64(r.Duration.Microseconds())/1000, detail)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 100))
	fmt.Fprintln(sb, Summarize(results).String())

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Summary Summary  `json:"summary"`
	Results []Result `json:"results"`
}

// FormatJSON writes the results and their summary as indented JSON.
func FormatJSON(results []Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jsonReport{Summary: Summarize(results), Results: results})
}
