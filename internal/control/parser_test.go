package control

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const sampleIndex = `Package: alpha
Version: 1.0-1
Architecture: amd64
Installed-Size: 120
Maintainer: Alpha Team <alpha@example.com>
Depends: libc6 (>= 2.31)
Filename: pool/main/a/alpha/alpha_1.0-1_amd64.deb
Size: 40960
Description: first sample package
 It has a long description
 .
 spread over several lines.
Homepage: https://alpha.example.com

Package: beta
Version: 2.3
Architecture: all
Description: second sample package
 with a continuation line
Build-Depends: debhelper
Status: install ok installed
`

func TestParseAllLastRecordWithoutBlankLine(t *testing.T) {
	records, err := ParseAll(strings.NewReader(sampleIndex), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[1].Name() != "beta" {
		t.Errorf("Expected last record beta, got %q", records[1].Name())
	}
	if records[1].Get(FieldStatus) != "install ok installed" {
		t.Errorf("Status after description not captured: %q", records[1].Get(FieldStatus))
	}
}

func TestParseDescription(t *testing.T) {
	records, err := ParseAll(strings.NewReader(sampleIndex), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}

	want := "first sample package\n It has a long description\n .\n spread over several lines."
	if got := records[0].Get(FieldDescription); got != want {
		t.Errorf("Description mismatch:\ngot:  %q\nwant: %q", got, want)
	}
	if got := records[0].Get(FieldHomepage); got != "https://alpha.example.com" {
		t.Errorf("Field after description lost: %q", got)
	}
	if got := records[1].Get(FieldDescription); got != "second sample package\n with a continuation line" {
		t.Errorf("Description ended at wrong line: %q", got)
	}
}

func TestCompactMode(t *testing.T) {
	records, err := ParseAll(strings.NewReader(sampleIndex), Compact)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		for key := range rec.Fields {
			if key != FieldPackage && key != FieldStatus {
				t.Errorf("Compact record %s captured %s", rec.Name(), key)
			}
		}
	}

	first, second := records[0], records[1]
	if first.Offset != 0 {
		t.Errorf("First record offset = %d, want 0", first.Offset)
	}
	if second.Offset != first.Offset+first.Size {
		t.Errorf("Records not contiguous: %d+%d != %d", first.Offset, first.Size, second.Offset)
	}
	if second.Offset+second.Size != int64(len(sampleIndex)) {
		t.Errorf("Last record does not reach end of stream: %d+%d != %d", second.Offset, second.Size, len(sampleIndex))
	}
}

func TestExtractRoundTrip(t *testing.T) {
	data := []byte(sampleIndex)

	full, err := ParseAll(bytes.NewReader(data), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	compact, err := ParseAll(bytes.NewReader(data), Compact)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}

	for i, rec := range compact {
		extracted, err := Extract(bytes.NewReader(data), rec.Offset, rec.Size)
		if err != nil {
			t.Fatalf("Extract %s failed: %v", rec.Name(), err)
		}
		if !reflect.DeepEqual(extracted.Fields, full[i].Fields) {
			t.Errorf("Extracted %s differs:\ngot:  %v\nwant: %v", rec.Name(), extracted.Fields, full[i].Fields)
		}
		if extracted.Offset != rec.Offset {
			t.Errorf("Extracted offset = %d, want %d", extracted.Offset, rec.Offset)
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	first, err := ParseAll(strings.NewReader(sampleIndex), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	second, err := ParseAll(strings.NewReader(sampleIndex), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Parsing twice produced different records")
	}
}

func TestStatusScenario(t *testing.T) {
	status := "Package: foo\nStatus: install ok installed\nVersion: 1\n\nPackage: bar\nStatus: deinstall ok config-files\nVersion: 2\n"

	records, err := ParseAll(strings.NewReader(status), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	foo := ToPkgInfo(records[0], "")
	bar := ToPkgInfo(records[1], "")
	if !foo.Installed {
		t.Errorf("foo should be installed")
	}
	if bar.Installed {
		t.Errorf("bar should not be installed")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		value     string
		installed bool
		held      bool
	}{
		{"install ok installed", true, false},
		{"hold ok installed", true, true},
		{"deinstall ok config-files", false, false},
		{"purge ok not-installed", false, false},
		{"install ok unpacked", true, false},
		{"install ok half-installed", true, false},
		{"install ok half-configured", true, false},
		{"install ok triggers-pending", true, false},
		{"deinstall ok installed", true, false},
		{"install reinstreq config-files", false, false},
		{"installed", true, false},
		{"deinstall", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		installed, held := ParseStatus(tt.value)
		if installed != tt.installed || held != tt.held {
			t.Errorf("ParseStatus(%q) = (%t, %t), want (%t, %t)", tt.value, installed, held, tt.installed, tt.held)
		}
	}
}

func TestBlankLinesBetweenRecords(t *testing.T) {
	input := "\n\nPackage: one\n\n\n\nPackage: two\n\n"

	records, err := ParseAll(strings.NewReader(input), Compact)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Offset != 2 {
		t.Errorf("First record offset = %d, want 2", records[0].Offset)
	}
	if got := input[records[1].Offset : records[1].Offset+records[1].Size]; got != "Package: two\n\n" {
		t.Errorf("Second record bytes = %q", got)
	}
}

func TestLongLine(t *testing.T) {
	depends := strings.Repeat("libfoo, ", 100000)
	input := "Package: big\nDepends: " + depends + "\nVersion: 1\n"

	records, err := ParseAll(strings.NewReader(input), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Get(FieldDepends) != depends {
		t.Errorf("Long Depends truncated to %d bytes", len(records[0].Get(FieldDepends)))
	}
	if records[0].Get(FieldVersion) != "1" {
		t.Errorf("Field after long line lost")
	}
}

func TestUnknownLinesIgnored(t *testing.T) {
	input := "Package: odd\nthis is not a field\nX-Custom: value\nVersion: 3\n"

	records, err := ParseAll(strings.NewReader(input), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(records) != 1 || records[0].Get(FieldVersion) != "3" {
		t.Errorf("Unexpected records: %+v", records)
	}
}

func TestToPkgInfoDownloadURL(t *testing.T) {
	records, err := ParseAll(strings.NewReader(sampleIndex), Full)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}

	pkg := ToPkgInfo(records[0], "https://deb.example.com/debian/")
	if pkg.DownloadURL != "https://deb.example.com/debian/pool/main/a/alpha/alpha_1.0-1_amd64.deb" {
		t.Errorf("DownloadURL = %q", pkg.DownloadURL)
	}
	if pkg.Size != 40960 || pkg.InstalledSizeKB != 120 {
		t.Errorf("Size fields = %d/%d", pkg.Size, pkg.InstalledSizeKB)
	}
	if pkg.Identity() != "alpha:1.0-1:amd64" {
		t.Errorf("Identity = %q", pkg.Identity())
	}
}

func TestCompressedIndex(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "example.com_debian_dists_stable_main_binary-amd64_Packages.gz")

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(sampleIndex))
	w.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}

	records, err := ParseFile(path, Compact)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	rec, err := ExtractFile(path, records[1].Offset, records[1].Size)
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	if rec.Get(FieldVersion) != "2.3" || rec.Get(FieldArchitecture) != "all" {
		t.Errorf("Extracted wrong record: %v", rec.Fields)
	}
}

func TestExtractFileSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.com_debian_dists_stable_main_binary-amd64_Packages.gz")

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(sampleIndex))
	w.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}

	records, err := ParseFile(path, Compact)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	spans := []Span{
		{Offset: records[0].Offset, Size: records[0].Size},
		{Offset: records[1].Offset, Size: records[1].Size},
	}
	full, err := ExtractFileSpans(path, spans)
	if err != nil {
		t.Fatalf("ExtractFileSpans failed: %v", err)
	}
	if len(full) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(full))
	}
	for i, rec := range full {
		single, err := ExtractFile(path, spans[i].Offset, spans[i].Size)
		if err != nil {
			t.Fatalf("ExtractFile failed: %v", err)
		}
		if !reflect.DeepEqual(rec, single) {
			t.Errorf("Span %d = %+v, want %+v", i, rec, single)
		}
	}

	if _, err := ExtractFileSpans(path, []Span{spans[1], spans[0]}); err == nil {
		t.Error("Expected error for unsorted spans")
	}
}

func TestExtractPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	if err := os.WriteFile(path, []byte(sampleIndex), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	records, err := ParseFile(path, Compact)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	raw, err := ExtractFileRaw(path, records[1].Offset, records[1].Size)
	if err != nil {
		t.Fatalf("ExtractFileRaw failed: %v", err)
	}
	if !strings.HasPrefix(string(raw), "Package: beta\n") {
		t.Errorf("Raw record starts with %q", raw[:20])
	}
}

func TestParseFileUnreadable(t *testing.T) {
	records, err := ParseFile(filepath.Join(t.TempDir(), "missing"), Full)
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}
