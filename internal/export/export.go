// Package export renders class rosters and lesson plan lists as XLSX
// workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-school/internal/classroom"
	"github.com/p-n-ai/pai-school/internal/lessonplan"
)

const (
	// ContentType is the media type of the produced workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04"
)

// Roster writes a workbook with a class summary sheet and a student sheet.
func Roster(w io.Writer, v classroom.View) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary, roster = "Class", "Students"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]any{
		{"Name", v.Name},
		{"Grade", v.Grade},
		{"Section", v.Section},
		{"Academic Year", v.AcademicYear},
		{"Students", v.CurrentStudents},
		{"Max Students", v.MaxStudents},
		{"Capacity", string(v.Band)},
	}
	if v.OverCapacity {
		rows = append(rows, []any{"Over Capacity By", v.OverBy})
	}
	for i, row := range rows {
		if err := setRow(f, summary, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summary, "A", "A", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(roster); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeHeader(f, roster, []string{"Name", "Email", "Last Updated"}); err != nil {
		return err
	}
	for i, st := range v.Students {
		updated := ""
		if !st.UpdatedAt.IsZero() {
			updated = st.UpdatedAt.Format(timestampLayout)
		}
		if err := setRow(f, roster, i+2, []any{st.Name, st.Email, updated}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(roster, "A", "B", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	return write(f, w)
}

// LessonPlans writes one row per plan, including the evaluation total.
func LessonPlans(w io.Writer, records []lessonplan.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Lesson Plans"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := []string{
		"Title", "Subject", "Class", "Academic Year", "Date", "Chapter",
		"Learning Outcomes", "Evaluation Total (%)", "Files", "Links", "Status", "Created",
	}
	if err := writeHeader(f, sheet, header); err != nil {
		return err
	}

	for i, r := range records {
		total, _ := lessonplan.TotalOf(r.EvaluationItems).Float64()
		row := []any{
			r.Title,
			r.Subject,
			r.Class,
			r.AcademicYear,
			orBlank(r.Date),
			orBlank(r.ChapterName),
			len(r.LearningOutcomeIDs),
			total,
			len(r.ResourceFiles),
			len(r.ResourceLinks),
			string(r.Status),
			r.CreatedAt.Format(dateLayout),
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	return write(f, w)
}

func writeHeader(f *excelize.File, sheet string, names []string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	row := make([]any, len(names))
	for i, n := range names {
		row[i] = n
	}
	if err := setRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(names), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("row %d: %w", n, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func orBlank(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
