package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/pdfprep/internal/jobs"
)

func TestPrintRecord_Complete(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	rec := jobs.NewProcessing("report.pdf", "run-1").Completed(jobs.Result{
		Filename:        "processed_report.pdf.txt",
		FileSize:        2048,
		ExtractedLength: 1200,
		ProcessedLength: 700,
		Timings:         jobs.Timings{Extraction: 0.25, Total: 0.5},
	}, "Processing completed in 0.500 seconds")

	p.PrintRecord(rec)
	output := buf.String()

	assert.Contains(t, output, "PDF PROCESSING RESULT")
	assert.Contains(t, output, "report.pdf")
	assert.Contains(t, output, "complete (100%)")
	assert.Contains(t, output, "processed_report.pdf.txt")
	assert.Contains(t, output, "2.0 KiB")
	assert.Contains(t, output, "1200 → 700 characters")
	assert.Contains(t, output, "0.250s")
}

func TestPrintRecord_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	rec := jobs.NewProcessing("bad.pdf", "run-1").Failed(jobs.ErrorKindStage, "Error extracting text from PDF: malformed")
	p.PrintRecord(rec)
	output := buf.String()

	assert.Contains(t, output, "PDF PROCESSING FAILED")
	assert.Contains(t, output, "Kind:     stage")
	assert.NotContains(t, output, "Timings")
}

func TestPrintRecord_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	rec := jobs.NewProcessing(strings.Repeat("x", 120)+".pdf", "run-1")
	p.PrintRecord(rec)

	assert.Contains(t, buf.String(), "...")
}

func TestPrintJobList(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var recs []jobs.Record
	for i := 0; i < maxListRows+3; i++ {
		recs = append(recs, jobs.NewProcessing(fmt.Sprintf("doc-%d.pdf", i), "run"))
	}
	p.PrintJobList(recs)
	output := buf.String()

	assert.Contains(t, output, "JOBS (23)")
	assert.Contains(t, output, "doc-0.pdf")
	assert.Contains(t, output, "... and 3 more")
	assert.NotContains(t, output, "doc-22.pdf")
}

func TestPrintJobList_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintJobList(nil)

	assert.Contains(t, buf.String(), "No jobs recorded")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgress(35, "Extracting text: 50.0% complete")

	assert.Equal(t, "[ 35%] Extracting text: 50.0% complete\n", buf.String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 GiB", formatBytes(3<<30))
}
