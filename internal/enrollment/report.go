package enrollment

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Completed"

// WriteCompletedReport writes learners as an XLSX workbook with one row per learner.
func WriteCompletedReport(w io.Writer, courseID string, learners []CompletedLearner) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"Course", "Learner", "Progress", "Start date", "Completion date", "Completed after admin mark", "Admin mark completed at"}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", "G1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, l := range learners {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			courseID,
			l.LearnerID,
			l.Progress,
			formatTime(&l.StartDate),
			formatTime(l.CompletionDate),
			yesNo(l.CompletedAfterAdminMark),
			formatTime(l.AdminMarkCompletedAt),
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(reportSheet, "A", "G", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
