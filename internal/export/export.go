// Package export renders license listings as CSV or XLSX and optionally
// seals the result with a passphrase.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/cloudlicensepro/internal/model"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var header = []string{
	"License Key", "Product", "Customer", "Email", "Status", "Type",
	"Activations", "Max Activations", "Expires", "Created",
}

func row(l model.License) []string {
	maxAct := "unlimited"
	if l.MaxActivations != nil {
		maxAct = strconv.Itoa(*l.MaxActivations)
	}
	expires := ""
	if l.ExpiresAt != nil {
		expires = l.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return []string{
		l.Key,
		l.ProductName,
		l.CustomerName,
		l.CustomerEmail,
		l.Status,
		l.Type,
		strconv.Itoa(l.ActivationCount),
		maxAct,
		expires,
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// freeText are the row columns holding user-entered values.
var freeText = []int{0, 1, 2, 3}

// csvCell keeps spreadsheet programs from evaluating a cell as a formula.
func csvCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func WriteCSV(w io.Writer, licenses []model.License) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range licenses {
		rec := row(l)
		for _, i := range freeText {
			rec[i] = csvCell(rec[i])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

const sheetName = "Licenses"

func WriteXLSX(w io.Writer, licenses []model.License) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	write := func(r int, values []string) error {
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(1, header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, l := range licenses {
		if err := write(i+2, row(l)); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// Render writes licenses in format and seals the output when passphrase is
// set. It returns the bytes and the content type to serve them with.
func Render(format string, licenses []model.License, passphrase string) ([]byte, string, error) {
	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch format {
	case FormatCSV, "":
		contentType = "text/csv"
		err = WriteCSV(&buf, licenses)
	case FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = WriteXLSX(&buf, licenses)
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, "", err
	}

	if passphrase == "" {
		return buf.Bytes(), contentType, nil
	}
	sealed, err := Seal(buf.Bytes(), passphrase)
	if err != nil {
		return nil, "", err
	}
	return sealed, "application/octet-stream", nil
}
