package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

type Renderer interface {
	Render(ds *Dataset) ([]byte, error)
	Extension() string
	ContentType() string
}

type Renderers map[Format]Renderer

func DefaultRenderers() Renderers {
	return Renderers{
		FormatCSV:   CSVRenderer{},
		FormatExcel: ExcelRenderer{},
		FormatPDF:   PDFRenderer{},
	}
}

func (r Renderers) For(f Format) (Renderer, error) {
	renderer, ok := r[f]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoRenderer, f)
	}
	return renderer, nil
}

// FileName builds "<slug>_<yyyymmdd_hhmm><ext>" in UTC.
func FileName(name string, at time.Time, ext string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s_%s%s", slug, at.UTC().Format("20060102_1504"), ext)
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

type CSVRenderer struct{}

func (CSVRenderer) Extension() string   { return ".csv" }
func (CSVRenderer) ContentType() string { return "text/csv" }

func (CSVRenderer) Render(ds *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(ds.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

type ExcelRenderer struct{}

func (ExcelRenderer) Extension() string { return ".xlsx" }
func (ExcelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

const excelSheet = "Sheet1"

func (ExcelRenderer) Render(ds *Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(excelSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write excel header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("excel header style: %w", err)
	}
	if err := f.SetRowStyle(excelSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("excel header style: %w", err)
	}

	for r, row := range ds.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = excelValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(excelSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write excel row %d: %w", r+1, err)
		}
	}

	if len(ds.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(ds.Columns))
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(excelSheet, "A", last, 20); err != nil {
			return nil, fmt.Errorf("excel column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// excelValue keeps numbers numeric so spreadsheets can sum them.
func excelValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case int, int16, int32, int64, float32, float64, bool, string:
		return t
	case time.Time:
		return t.UTC()
	default:
		return formatCell(v)
	}
}

type PDFRenderer struct{}

func (PDFRenderer) Extension() string   { return ".pdf" }
func (PDFRenderer) ContentType() string { return "application/pdf" }

func (PDFRenderer) Render(ds *Dataset) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(ds.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+ds.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(ds.Columns) > 0 {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		colW := (pageW - left - right) / float64(len(ds.Columns))

		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range ds.Columns {
			pdf.CellFormat(colW, 7, tr(c), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		for _, row := range ds.Rows {
			for i := range ds.Columns {
				text := ""
				if i < len(row) {
					text = formatCell(row[i])
				}
				pdf.CellFormat(colW, 6, tr(text), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		if len(ds.Rows) == 0 {
			pdf.CellFormat(0, 6, "No data for this period.", "", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
