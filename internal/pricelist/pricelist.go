// Package pricelist parses supplier price-list uploads from CSV or XLSX
// into validated rows and keeps each supplier's uploads as immutable,
// supplier-scoped lists. Required columns are name and unit, the one
// contract both formats share (unit is what the enrichment pipeline needs
// downstream); rows missing either are rejected individually with a
// reason, never aborting the whole file.
package pricelist

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// SourceFormat is the upload's file type.
type SourceFormat string

const (
	FormatCSV  SourceFormat = "csv"
	FormatXLSX SourceFormat = "xlsx"
)

// MaxFileBytes bounds a single upload.
const MaxFileBytes = 50 * 1024 * 1024

// Row is one parsed price-list line.
type Row struct {
	MaterialRef string
	RawName     string
	Unit        string
	Price       float64
	Description string
	SKU         string
}

// RejectedRow records why one input row could not be parsed into a Row,
// without aborting the rest of the file ("Rows exceeding schema are
// rejected per-row with reason").
type RejectedRow struct {
	LineNumber int // 1-based file line; the header is line 1
	Reason     string
	Raw        map[string]string
}

// PriceList is one immutable upload. Deletion is by supplier
// scope, never by individual row.
type PriceList struct {
	SupplierID   string
	PricelistID  string
	UploadedAt   time.Time
	Rows         []Row
	Rejected     []RejectedRow
	SourceFormat SourceFormat
}

// requiredColumns is the header contract every supported format shares.
var requiredColumns = []string{"name", "unit"}

// ParseCSV reads a UTF-8, comma-separated file whose first row is
// headers. Required columns: name, unit. Optional: description, price,
// sku.
func ParseCSV(r io.Reader) ([]Row, []RejectedRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate ragged rows; validated per-field below
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("pricelist: empty file, expected a header row")
		}
		return nil, nil, fmt.Errorf("pricelist: read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}

	var rows []Row
	var rejected []RejectedRow
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("pricelist: read row %d: %w", line+1, err)
		}
		line++
		row, rawMap, reason := parseRecord(idx, record)
		if reason != "" {
			rejected = append(rejected, RejectedRow{LineNumber: line, Reason: reason, Raw: rawMap})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejected, nil
}

// ParseXLSX reads the first sheet of an XLSX workbook ("XLSX read via
// first sheet"), applying the same header/column contract as ParseCSV.
func ParseXLSX(r io.Reader) ([]Row, []RejectedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("pricelist: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("pricelist: xlsx has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("pricelist: read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("pricelist: empty sheet, expected a header row")
	}
	idx, err := columnIndex(records[0])
	if err != nil {
		return nil, nil, err
	}

	var rows []Row
	var rejected []RejectedRow
	for i, record := range records[1:] {
		line := i + 2 // 1-based, header is line 1
		row, rawMap, reason := parseRecord(idx, record)
		if reason != "" {
			rejected = append(rejected, RejectedRow{LineNumber: line, Reason: reason, Raw: rawMap})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejected, nil
}

// Parse dispatches to ParseCSV or ParseXLSX by format.
func Parse(r io.Reader, format SourceFormat) ([]Row, []RejectedRow, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatXLSX:
		return ParseXLSX(r)
	default:
		return nil, nil, fmt.Errorf("pricelist: unsupported source format %q", format)
	}
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("pricelist: missing required column %q", req)
		}
	}
	return idx, nil
}

func parseRecord(idx map[string]int, record []string) (Row, map[string]string, string) {
	raw := make(map[string]string, len(idx))
	for col, i := range idx {
		if i < len(record) {
			raw[col] = record[i]
		}
	}

	name := strings.TrimSpace(field(record, idx, "name"))
	unit := strings.TrimSpace(field(record, idx, "unit"))
	if name == "" {
		return Row{}, raw, "missing required field: name"
	}
	if unit == "" {
		return Row{}, raw, "missing required field: unit"
	}

	row := Row{
		RawName:     name,
		Unit:        unit,
		Description: strings.TrimSpace(field(record, idx, "description")),
		SKU:         strings.TrimSpace(field(record, idx, "sku")),
	}
	if priceStr := strings.TrimSpace(field(record, idx, "price")); priceStr != "" {
		p, err := strconv.ParseFloat(strings.ReplaceAll(priceStr, ",", "."), 64)
		if err != nil {
			return Row{}, raw, fmt.Sprintf("invalid price %q", priceStr)
		}
		row.Price = p
	}
	return row, raw, ""
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
