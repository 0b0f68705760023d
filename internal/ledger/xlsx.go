package ledger

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Receipts"

// Encode serializes the document as a single-sheet xlsx workbook.
func (d *Document) Encode() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	if err := writeRow(f, 1, Header); err != nil {
		return nil, err
	}
	for i, row := range d.rows {
		if err := writeRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, rowNum int, cells []string) error {
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("computing cell name: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", rowNum, err)
	}
	return nil
}

// Decode loads a document previously produced by Encode. The header row
// must match Header exactly; a document with a different schema is from
// another program and appending to it would scramble columns.
func Decode(data []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheetName)
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	doc := New()
	for _, row := range rows[1:] {
		// GetRows drops trailing empty cells; pad back to the full schema.
		padded := make([]string, len(Header))
		copy(padded, row)
		doc.rows = append(doc.rows, padded)
	}
	return doc, nil
}

func checkHeader(row []string) error {
	if len(row) != len(Header) {
		return fmt.Errorf("unexpected header: got %d columns, want %d", len(row), len(Header))
	}
	for i, want := range Header {
		if row[i] != want {
			return fmt.Errorf("unexpected header column %d: got %q, want %q", i+1, row[i], want)
		}
	}
	return nil
}
