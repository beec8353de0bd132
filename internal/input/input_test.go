package input

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Profiles")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "profiles.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadJSONL(t *testing.T) {
	path := writeTempFile(t, "in.jsonl", `
{"profile_id":"p1","profile_name":"Jane Doe","extraction_method":"site_crawl","fields":{"email":"jane@acme.io"}}

{"profile_id":"p2","extraction_method":"deep_research","fields":{"name":"Bob"},"raw_source_content":"Bob builds robots."}
`)

	records, err := LoadJSONL(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p1", records[0].ProfileID)
	assert.Equal(t, "jane@acme.io", records[0].Fields["email"])
	assert.Equal(t, "Bob builds robots.", records[1].RawSourceContent)
}

func TestLoadJSONLRejectsMalformedLine(t *testing.T) {
	path := writeTempFile(t, "bad.jsonl", `{"profile_id":"p1","extraction_method":"m","fields":{}}
{not json`)

	_, err := LoadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadJSONLRejectsContractViolation(t *testing.T) {
	path := writeTempFile(t, "bad.jsonl", `{"profile_id":"","extraction_method":"m","fields":{}}`)

	_, err := LoadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile_id")
}

func TestLoadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"profile_id", "profile_name", "Email", "title", "content_as_of"},
		{"p1", "Jane Doe", "jane@acme.io", "CTO", "2026-05-01"},
		{"", "", "", "", ""},
		{"p2", "Bob", "bob@example.com", "", ""},
	})

	records, err := LoadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2, "blank rows are skipped")

	assert.Equal(t, "p1", records[0].ProfileID)
	assert.Equal(t, "Jane Doe", records[0].ProfileName)
	assert.Equal(t, "jane@acme.io", records[0].Fields["email"], "headers are lowercased")
	assert.Equal(t, "CTO", records[0].Fields["title"])
	assert.Equal(t, "spreadsheet_import", records[0].ExtractionMethod)
	require.NotNil(t, records[0].ContentAsOf)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *records[0].ContentAsOf)

	assert.Nil(t, records[1].ContentAsOf)
}

func TestLoadXLSXMissingProfileID(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"profile_id", "email"},
		{"", "jane@acme.io"},
	})

	_, err := LoadXLSX(path, XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestLoadXLSXSheetNotFound(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"profile_id"}})

	_, err := LoadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
