// Package report renders reimbursement statements as XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/giygas/cnas-api/entities"
	"github.com/giygas/cnas-api/reimbursement"
)

// SheetName is the name of the single worksheet of a statement
const SheetName = "Remboursement"

// ContentType is the MIME type of the generated workbooks
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{"Médicament", "Prix public (DZD)", "Remboursable", "Taux", "Part CNAS (DZD)", "Part patient (DZD)"}

// Line is a priced prescription line with its split
type Line struct {
	Label        string
	Reimbursable bool
	Split        reimbursement.Split
}

// Statement is a reimbursement simulation ready to be exported
type Statement struct {
	GeneratedAt time.Time
	Mode        reimbursement.Mode
	Lines       []Line
	Result      entities.ReimbursementResult
}

// NewStatement pairs labels with the splits of a batch. Missing labels are
// numbered.
func NewStatement(labels []string, inputs []entities.ReimbursementLineInput, splits []reimbursement.Split, result entities.ReimbursementResult, mode reimbursement.Mode, at time.Time) (Statement, error) {
	if len(splits) != len(inputs) {
		return Statement{}, fmt.Errorf("%d splits for %d lines", len(splits), len(inputs))
	}

	lines := make([]Line, len(splits))
	for i, split := range splits {
		label := fmt.Sprintf("Ligne %d", i+1)
		if i < len(labels) && labels[i] != "" {
			label = labels[i]
		}
		lines[i] = Line{Label: label, Reimbursable: inputs[i].IsReimbursable, Split: split}
	}

	return Statement{GeneratedAt: at, Mode: mode, Lines: lines, Result: result}, nil
}

// WriteXLSX writes the statement as a workbook to w
func WriteXLSX(w io.Writer, stmt Statement) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close workbook: %w", closeErr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	b := &sheetBuilder{f: f}
	b.set("A1", "Relevé de remboursement CNAS")
	b.style("A1", "A1", styles.title)
	b.set("A2", "Généré le")
	b.set("B2", stmt.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	b.set("A3", "Mode")
	b.set("B3", string(stmt.Mode))

	const headerRow = 5
	b.row(headerRow, header)
	b.style(cell(1, headerRow), cell(len(header), headerRow), styles.header)

	row := headerRow
	for _, line := range stmt.Lines {
		row++
		b.row(row, []any{
			line.Label,
			line.Split.LineTotal,
			yesNo(line.Reimbursable),
			line.Split.Rate,
			line.Split.CNASShare,
			line.Split.PatientShare,
		})
	}
	if row > headerRow {
		b.style(cell(2, headerRow+1), cell(2, row), styles.amount)
		b.style(cell(4, headerRow+1), cell(4, row), styles.percent)
		b.style(cell(5, headerRow+1), cell(6, row), styles.amount)
	}

	row += 2
	b.row(row, []any{"Total", stmt.Result.TotalAmount, "", stmt.Result.Rate, stmt.Result.ReimbursedAmount, stmt.Result.RemainingAmount})
	b.style(cell(1, row), cell(len(header), row), styles.total)
	b.style(cell(2, row), cell(2, row), styles.totalAmount)
	b.style(cell(4, row), cell(4, row), styles.totalPercent)
	b.style(cell(5, row), cell(6, row), styles.totalAmount)

	if b.err == nil {
		b.err = f.SetColWidth(SheetName, "A", "A", 32)
	}
	if b.err == nil {
		b.err = f.SetColWidth(SheetName, "B", "F", 18)
	}
	if b.err != nil {
		return fmt.Errorf("failed to fill statement: %w", b.err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetBuilder keeps the first error so cells can be written without
// checking every call
type sheetBuilder struct {
	f   *excelize.File
	err error
}

func (b *sheetBuilder) set(axis string, value any) {
	if b.err == nil {
		b.err = b.f.SetCellValue(SheetName, axis, value)
	}
}

func (b *sheetBuilder) row(row int, values []any) {
	if b.err == nil {
		b.err = b.f.SetSheetRow(SheetName, cell(1, row), &values)
	}
}

func (b *sheetBuilder) style(from, to string, styleID int) {
	if b.err == nil {
		b.err = b.f.SetCellStyle(SheetName, from, to, styleID)
	}
}

type styleSet struct {
	title, header, amount, percent, total, totalAmount, totalPercent int
}

func newStyles(f *excelize.File) (styleSet, error) {
	const (
		numFmtThousands = 3  // #,##0
		numFmtPercent   = 10 // 0.00%
	)
	fill := excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}}

	var s styleSet
	defs := []struct {
		target *int
		style  *excelize.Style
	}{
		{&s.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
		{&s.header, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: fill}},
		{&s.amount, &excelize.Style{NumFmt: numFmtThousands}},
		{&s.percent, &excelize.Style{NumFmt: numFmtPercent}},
		{&s.total, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&s.totalAmount, &excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: numFmtThousands}},
		{&s.totalPercent, &excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: numFmtPercent}},
	}

	for _, def := range defs {
		id, err := f.NewStyle(def.style)
		if err != nil {
			return styleSet{}, fmt.Errorf("failed to create style: %w", err)
		}
		*def.target = id
	}
	return s, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func yesNo(b bool) string {
	if b {
		return "Oui"
	}
	return "Non"
}
