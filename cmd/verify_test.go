package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

func TestLoadInputDispatch(t *testing.T) {
	dir := t.TempDir()

	jsonl := filepath.Join(dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(
		`{"profile_id":"p1","extraction_method":"site_crawl","fields":{"email":"a@b.co"}}`+"\n"), 0o644))

	records, err := loadInput(jsonl)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ProfileID)

	_, err = loadInput(filepath.Join(dir, "batch.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input format")
}

func TestWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	records := []*model.StoreRecord{
		{ProfileID: "p1", VerificationStatus: model.GateVerified, Confidence: 1.0},
		{ProfileID: "p2", VerificationStatus: model.GateUnverified, Confidence: 0.85},
	}

	require.NoError(t, writeJSONL(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profile_id":"p1"`)
	assert.Contains(t, string(data), `"verification_status":"unverified"`)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"verify", "retry", "quarantine", "strategies", "migrate"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
