// Package export renders recorded calls and their sentiment analyses into an
// Excel workbook for download from the dashboard.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/sentiment"
)

const (
	callsSheet     = "Calls"
	sentimentSheet = "Sentiment"
)

var callsHeader = []any{
	"Call ID", "Organization", "Phone Number", "Status", "Duration (s)",
	"Started At", "Ended At", "Error", "Transcript Fetched At", "Sentiment", "Transcript",
}

var sentimentHeader = []any{
	"Analysis ID", "Call ID", "Organization", "Sentiment", "Score", "Summary", "Model", "Created At",
}

// BuildWorkbook lays the given calls out on a "Calls" sheet and their latest
// analyses on a "Sentiment" sheet. Row order follows the input slice; the
// analyses map is keyed by call ID.
func BuildWorkbook(rows []calls.Call, analyses map[string]sentiment.Analysis) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", callsSheet); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sentimentSheet); err != nil {
		return nil, fmt.Errorf("export: add sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("export: header style: %w", err)
	}

	if err := writeHeader(f, callsSheet, callsHeader, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, sentimentSheet, sentimentHeader, headerStyle); err != nil {
		return nil, err
	}

	for i, c := range rows {
		label := ""
		if a, ok := analyses[c.CallID]; ok {
			label = a.Label
		}
		row := []any{
			c.CallID, c.OrgID, c.PhoneNumber, string(c.Status), c.DurationSeconds,
			formatTime(c.StartedAt), formatTime(c.EndedAt), c.ErrorMessage,
			formatTimePtr(c.TranscriptFetchedAt), label, c.Transcript,
		}
		if err := writeRow(f, callsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	// One sentiment row per analyzed call, in the same order as the calls
	// sheet so the two line up for reviewers.
	n := 2
	for _, c := range rows {
		a, ok := analyses[c.CallID]
		if !ok {
			continue
		}
		row := []any{
			a.ID, a.CallID, a.OrgID, a.Label, a.Score, a.Summary, a.Model,
			formatTime(a.CreatedAt),
		}
		if err := writeRow(f, sentimentSheet, n, row); err != nil {
			return nil, err
		}
		n++
	}

	// Widen the free-text columns so exports open readable.
	if err := f.SetColWidth(callsSheet, "K", "K", 80); err != nil {
		return nil, fmt.Errorf("export: column width: %w", err)
	}
	if err := f.SetColWidth(sentimentSheet, "F", "F", 60); err != nil {
		return nil, fmt.Errorf("export: column width: %w", err)
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("export: header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", end, style); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("export: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export: write row: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
