package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/xuri/excelize/v2"
)

var header = []string{"Date", "Emails Sent", "Opens", "Replies", "Bounces", "Open Rate %", "Reply Rate %", "Bounce Rate %"}

// ContentType returns the MIME type for a report format.
func ContentType(format string) string {
	if format == models.FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName returns the download file name for rep.
func FileName(rep *models.Report) string {
	return fmt.Sprintf("report-%s.%s", rep.ID, rep.Format)
}

// Render writes the daily rows and a totals line in rep's format.
func Render(w io.Writer, rep *models.Report, rows []models.DailyMetric) error {
	switch rep.Format {
	case models.FormatCSV:
		return renderCSV(w, rows)
	case models.FormatXLSX:
		return renderXLSX(w, rep, rows)
	default:
		return fmt.Errorf("unsupported report format %q", rep.Format)
	}
}

func record(label string, m models.DailyMetric) []string {
	return []string{
		label,
		strconv.FormatInt(m.Sent, 10),
		strconv.FormatInt(m.Opens, 10),
		strconv.FormatInt(m.Replies, 10),
		strconv.FormatInt(m.Bounces, 10),
		strconv.FormatFloat(m.OpenRate(), 'f', 1, 64),
		strconv.FormatFloat(m.ReplyRate(), 'f', 1, 64),
		strconv.FormatFloat(m.BounceRate(), 'f', 1, 64),
	}
}

func totals(rows []models.DailyMetric) models.DailyMetric {
	var t models.DailyMetric
	for _, r := range rows {
		t.Add(r)
	}
	return t
}

func renderCSV(w io.Writer, rows []models.DailyMetric) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r.Date, r)); err != nil {
			return err
		}
	}
	if err := cw.Write(record("Total", totals(rows))); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

const (
	dataSheet    = "Daily"
	summarySheet = "Summary"
)

func renderXLSX(w io.Writer, rep *models.Report, rows []models.DailyMetric) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(dataSheet); err != nil {
		return err
	}

	t := totals(rows)
	summary := [][]any{
		{"Report", rep.Name},
		{"Type", rep.Type},
		{"From", rep.StartDate},
		{"To", rep.EndDate},
		{"Emails Sent", t.Sent},
		{"Opens", t.Opens},
		{"Replies", t.Replies},
		{"Bounces", t.Bounces},
		{"Open Rate %", t.OpenRate()},
		{"Reply Rate %", t.ReplyRate()},
		{"Bounce Rate %", t.BounceRate()},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(dataSheet, "A1", &headerRow); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Date, r.Sent, r.Opens, r.Replies, r.Bounces, r.OpenRate(), r.ReplyRate(), r.BounceRate()}
		if err := f.SetSheetRow(dataSheet, cell, &values); err != nil {
			return err
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+2)
	if err != nil {
		return err
	}
	totalRow := []any{"Total", t.Sent, t.Opens, t.Replies, t.Bounces, t.OpenRate(), t.ReplyRate(), t.BounceRate()}
	if err := f.SetSheetRow(dataSheet, cell, &totalRow); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
