package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/cloudlicensepro/internal/model"
)

func sampleLicenses() []model.License {
	maxAct := 3
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.License{
		{
			Key: "CLP-AAAA-BBBB-CCCC-DDDD", ProductName: "Editor", CustomerName: "Ann",
			CustomerEmail: "ann@example.com", Status: "active", Type: "single",
			ActivationCount: 1, MaxActivations: &maxAct, ExpiresAt: &exp,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			Key: "CLP-EEEE-FFFF-0000-1111", ProductName: "Viewer", Status: "revoked", Type: "floating",
			CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleLicenses()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want 3", len(records))
	}
	if records[0][0] != "License Key" {
		t.Errorf("header[0] = %q, want %q", records[0][0], "License Key")
	}
	if records[1][7] != "3" {
		t.Errorf("max activations = %q, want %q", records[1][7], "3")
	}
	if records[1][8] != "2027-01-01T00:00:00Z" {
		t.Errorf("expires = %q, want %q", records[1][8], "2027-01-01T00:00:00Z")
	}
	if records[2][7] != "unlimited" {
		t.Errorf("max activations = %q, want %q", records[2][7], "unlimited")
	}
}

func TestWriteCSVEscapesFormulas(t *testing.T) {
	licenses := []model.License{{
		Key:           "CLP-AAAA-BBBB-CCCC-DDDD",
		ProductName:   "+Editor",
		CustomerName:  "=HYPERLINK(\"http://evil.example\",\"x\")",
		CustomerEmail: "@evil.example",
		Status:        "active",
		Type:          "single",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, licenses); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	tests := []struct {
		col  int
		want string
	}{
		{0, "CLP-AAAA-BBBB-CCCC-DDDD"},
		{1, "'+Editor"},
		{2, "'=HYPERLINK(\"http://evil.example\",\"x\")"},
		{3, "'@evil.example"},
		{4, "active"},
	}
	for _, tt := range tests {
		if got := records[1][tt.col]; got != tt.want {
			t.Errorf("col %d = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func TestCSVCell(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"plain": "plain",
		"-1+2":  "'-1+2",
		"\tcmd": "'\tcmd",
		"a=b":   "a=b",
	}
	for in, want := range tests {
		if got := csvCell(in); got != want {
			t.Errorf("csvCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleLicenses()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[2][0] != "CLP-EEEE-FFFF-0000-1111" {
		t.Errorf("key = %q, want %q", rows[2][0], "CLP-EEEE-FFFF-0000-1111")
	}
}

func TestRenderSealed(t *testing.T) {
	plain, ct, err := Render(FormatCSV, sampleLicenses(), "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}

	sealed, ct, err := Render(FormatCSV, sampleLicenses(), "hunter2")
	if err != nil {
		t.Fatalf("render sealed: %v", err)
	}
	if ct != "application/octet-stream" {
		t.Errorf("content type = %q, want application/octet-stream", ct)
	}
	opened, err := Open(sealed, "hunter2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Error("opened export differs from plain export")
	}

	if _, _, err := Render("pdf", nil, ""); err == nil {
		t.Error("expected error for unsupported format")
	}
}
