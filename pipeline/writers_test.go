package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/google/go-cmp/cmp"
)

func sampleRow() models.ParsedRow {
	return models.ParsedRow{
		Rank:        1,
		Title:       "Romper – Tropical Leaf, Bamboo",
		URL:         "https://shop.test/products/romper-tropical-leaf",
		ProductType: "Romper",
		PrintName:   "Tropical Leaf, Bamboo",
		Rating:      "4.86",
		ReviewCount: "37",
		Category:    "rompers",
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "parsed_products.csv")

	writer, err := NewCSVWriter(path, false)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("header-only file should not validate")
	}
	if err := writer.Write([]models.ParsedRow{sampleRow()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	want := [][]string{
		{"rank", "title", "url", "product_type", "print_name", "rating", "review_count"},
		{"1", "Romper – Tropical Leaf, Bamboo", "https://shop.test/products/romper-tropical-leaf", "Romper", "Tropical Leaf, Bamboo", "4.86", "37"},
	}
	if diff := cmp.Diff(want, readCSV(t, path)); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVWriterCategoryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parsed_products.csv")

	writer, err := NewCSVWriter(path, true)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]models.ParsedRow{sampleRow()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	records := readCSV(t, path)
	if got := records[0][len(records[0])-1]; got != "category" {
		t.Fatalf("last header=%q, want category", got)
	}
	if got := records[1][len(records[1])-1]; got != "rompers" {
		t.Fatalf("last value=%q, want rompers", got)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parsed_products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	rows := []models.ParsedRow{sampleRow(), sampleRow()}
	rows[1].Rank = 2
	if err := writer.Write(rows); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var got []models.ParsedRow
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row models.ParsedRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, row)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("jsonl mismatch (-want +got):\n%s", diff)
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parsed_products.csv")

	writer, err := NewWriter("dual", path, false)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write([]models.ParsedRow{sampleRow()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"parsed_products.csv", "parsed_products.jsonl"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out.xml"), false); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
