package reporting

import (
	"sort"
	"time"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/observability"
)

// Entry is the outcome of analyzing one mint in a batch.
type Entry struct {
	Mint   string
	Result *domain.AnalysisResult // nil when Err is set
	Err    error
}

// Report represents a batch analysis report.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Summary
	Total         int
	PrePeakCount  int
	PostPeakCount int
	Failures      map[string]int // outcome label -> count

	// Rows sorted by mint
	Rows []Row
}

// Row is one line of the report.
type Row struct {
	Mint       string
	Outcome    string // "ok" or the failure label
	Verdict    string // pre_peak | post_peak, empty on failure
	Confidence float64
	DaysOfData int
	LastClose  float64
	Source     string
	Error      string
}

// NewReport summarizes batch entries.
func NewReport(entries []Entry, generatedAt time.Time) *Report {
	r := &Report{
		GeneratedAt: generatedAt.UTC(),
		Total:       len(entries),
		Failures:    make(map[string]int),
		Rows:        make([]Row, 0, len(entries)),
	}

	for _, e := range entries {
		row := Row{Mint: e.Mint, Outcome: observability.Outcome(e.Err)}
		switch {
		case e.Err != nil:
			row.Error = e.Err.Error()
			r.Failures[row.Outcome]++
		case e.Result != nil:
			res := e.Result
			row.Verdict = "post_peak"
			if res.IsPrePeak {
				row.Verdict = "pre_peak"
				r.PrePeakCount++
			} else {
				r.PostPeakCount++
			}
			row.Confidence = res.Confidence
			row.DaysOfData = res.DaysOfData
			row.Source = res.Source
			if last, ok := res.Series.Last(); ok {
				row.LastClose = last.Close
			}
		}
		r.Rows = append(r.Rows, row)
	}

	sort.SliceStable(r.Rows, func(i, j int) bool {
		return r.Rows[i].Mint < r.Rows[j].Mint
	})
	return r
}

// FailureCount returns the number of failed analyses.
func (r *Report) FailureCount() int {
	n := 0
	for _, c := range r.Failures {
		n += c
	}
	return n
}
