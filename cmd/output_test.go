package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pdftext/internal/model"
)

func sampleOutcome() *outcome {
	return &outcome{
		Doc:   model.Document{Name: "report.pdf", SHA256: "abc"},
		RunID: "run-1",
		Result: &model.RunResult{
			Backend:   "merged",
			OK:        true,
			Text:      "first page\n\nthird page",
			Pages:     []string{"first page", "", "third page"},
			PageCount: 3,
		},
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleOutcome(), formatText))
	assert.Equal(t, "first page\n\nthird page\n", buf.String())
}

func TestRender_Pages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleOutcome(), formatPages))

	out := buf.String()
	assert.Contains(t, out, "Page 1\n")
	assert.Contains(t, out, "Page 3\n")
	assert.NotContains(t, out, "Page 2\n")
	assert.Contains(t, out, "==================================================")
}

func TestRender_PagesFailureFallsBackToText(t *testing.T) {
	o := &outcome{Result: &model.RunResult{Text: "diagnostic"}}
	var buf bytes.Buffer
	require.NoError(t, render(&buf, o, formatPages))
	assert.Equal(t, "diagnostic\n", buf.String())
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleOutcome(), formatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	result := got["result"].(map[string]any)
	assert.Equal(t, "merged", result["backend"])
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleOutcome(), formatYAML))

	var got struct {
		RunID  string `yaml:"run_id"`
		Cached bool   `yaml:"cached"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.False(t, got.Cached)
}

func TestRender_UnknownFormat(t *testing.T) {
	err := render(&bytes.Buffer{}, sampleOutcome(), "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"text", "pages", "json", "yaml"} {
		assert.True(t, validFormat(f), f)
	}
	assert.False(t, validFormat("csv"))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "report.txt"), outputPath("out", "/inbox/report.pdf", formatText))
	assert.Equal(t, filepath.Join("out", "report.txt"), outputPath("out", "/inbox/report.PDF", formatPages))
	assert.Equal(t, filepath.Join("out", "report.json"), outputPath("out", "report.pdf", formatJSON))
	assert.Equal(t, filepath.Join("out", "report.yaml"), outputPath("out", "report.pdf", formatYAML))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.txt")
	require.NoError(t, writeFile(path, sampleOutcome(), formatText))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first page\n\nthird page\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")
}
