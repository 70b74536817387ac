package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/pdfprep/internal/config"
	"github.com/jonathan/pdfprep/internal/jobs"
	"github.com/jonathan/pdfprep/internal/testutil"
)

func localConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputDir = t.TempDir()
	cfg.OutputDir = filepath.Join(t.TempDir(), "processed")
	cfg.ProcessingTimeout = 10
	return cfg
}

func TestProcessFile_WritesProcessedText(t *testing.T) {
	cfg := localConfig(t)
	path := testutil.WritePDF(t, cfg.InputDir, "sample report.pdf", []string{
		"This is the first page of a sample report",
		"The second page talks about quarterly revenue",
	})

	var out bytes.Buffer
	rec, err := processFile(context.Background(), cfg, path, nil, &out, true)
	require.NoError(t, err)

	require.Equal(t, jobs.StatusComplete, rec.Status, rec.Details)
	assert.Equal(t, "sample_report.pdf", rec.JobID)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "processed_sample_report.pdf.txt", rec.Filename)

	text, err := os.ReadFile(filepath.Join(cfg.OutputDir, rec.Filename))
	require.NoError(t, err)
	assert.Contains(t, string(text), "quarterly")
	assert.NotContains(t, string(text), " the ")
	assert.Contains(t, out.String(), "Extracting text")
}

func TestProcessFile_NotAPDF(t *testing.T) {
	cfg := localConfig(t)
	path := filepath.Join(cfg.InputDir, "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	rec, err := processFile(context.Background(), cfg, path, nil, &bytes.Buffer{}, false)
	require.NoError(t, err)

	assert.Equal(t, jobs.StatusError, rec.Status)
	assert.Equal(t, jobs.ErrorKindStage, rec.ErrorKind)
	assert.Contains(t, rec.Details, "Error extracting text from PDF")
	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, "processed_notes.pdf.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessFile_MissingFile(t *testing.T) {
	cfg := localConfig(t)

	_, err := processFile(context.Background(), cfg, filepath.Join(cfg.InputDir, "nope.pdf"), nil, &bytes.Buffer{}, false)
	assert.ErrorContains(t, err, "PDF file not found")
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	t.Setenv("PROCESSING_TIMEOUT", "120")
	path := filepath.Join(t.TempDir(), "pdfprep.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 6001, "worker_count": 2}`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6001, cfg.Port)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 120, cfg.ProcessingTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("PDF_EXTRACTOR", "tesseract")

	_, err := loadConfig("")
	assert.ErrorContains(t, err, "Extractor")
}
