package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportOptions selects and shapes the roster export.
type ExportOptions struct {
	IndexFilter string
	NameFilter  string
	CourseName  string // when set, rows carry the attendance percentage for this course
	Format      string // csv (default), json, excel
}

// ExportFile is a downloadable document.
type ExportFile struct {
	Data        []byte
	ContentType string
	Filename    string
}

type exportRow struct {
	IndexNumber string   `json:"index_number"`
	Name        string   `json:"name"`
	Percent     *float64 `json:"attendance_percentage,omitempty"`
}

// ExportStudents produces the student roster in the requested format,
// optionally annotated with per-course attendance percentages.
func (s *Service) ExportStudents(ctx context.Context, opts ExportOptions) (ExportFile, error) {
	students, err := s.store.Students(ctx, opts.IndexFilter, opts.NameFilter)
	if err != nil {
		return ExportFile{}, err
	}

	var courseID int64
	withMarks := false
	if opts.CourseName != "" {
		id, ok, err := s.store.CourseIDByName(ctx, opts.CourseName)
		if err != nil {
			return ExportFile{}, err
		}
		if !ok {
			return ExportFile{}, ErrCourseNotFound
		}
		courseID = id
		withMarks = true
	}

	rows := make([]exportRow, 0, len(students))
	for _, st := range students {
		row := exportRow{IndexNumber: st.IndexNumber, Name: st.Name}
		if withMarks {
			p, err := s.StudentPercentage(ctx, st.ID, courseID, nil, nil)
			if err != nil {
				return ExportFile{}, err
			}
			pct := p.Percent
			row.Percent = &pct
		}
		rows = append(rows, row)
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		data, err := json.Marshal(rows)
		if err != nil {
			return ExportFile{}, err
		}
		return ExportFile{Data: data, ContentType: "application/json", Filename: "students.json"}, nil
	case "excel", "xlsx":
		return exportExcel(rows, withMarks)
	default:
		return exportCSV(rows, withMarks)
	}
}

func exportCSV(rows []exportRow, withMarks bool) (ExportFile, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"index_number", "name"}
	if withMarks {
		header = append(header, "attendance_percentage")
	}
	if err := w.Write(header); err != nil {
		return ExportFile{}, err
	}
	for _, row := range rows {
		record := []string{row.IndexNumber, row.Name}
		if withMarks {
			record = append(record, fmt.Sprintf("%.1f", *row.Percent))
		}
		if err := w.Write(record); err != nil {
			return ExportFile{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ExportFile{}, err
	}
	return ExportFile{Data: buf.Bytes(), ContentType: "text/csv", Filename: "students.csv"}, nil
}

func exportExcel(rows []exportRow, withMarks bool) (ExportFile, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{"Index Number", "Name"}
	if withMarks {
		headers = append(headers, "Attendance %")
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return ExportFile{}, err
		}
	}
	for i, row := range rows {
		values := []any{row.IndexNumber, row.Name}
		if withMarks {
			values = append(values, *row.Percent)
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return ExportFile{}, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		Data:        buf.Bytes(),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Filename:    "students.xlsx",
	}, nil
}
