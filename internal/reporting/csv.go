package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders report rows as CSV string.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	if err := w.Write([]string{
		"mint_address", "outcome", "verdict", "confidence",
		"days_of_data", "last_close", "source", "error",
	}); err != nil {
		return "", err
	}

	// Rows
	for _, row := range r.Rows {
		rec := []string{row.Mint, row.Outcome, row.Verdict, "", "", "", row.Source, row.Error}
		if row.Verdict != "" {
			rec[3] = strconv.FormatFloat(row.Confidence, 'f', 6, 64)
			rec[4] = strconv.Itoa(row.DaysOfData)
			rec[5] = strconv.FormatFloat(row.LastClose, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
