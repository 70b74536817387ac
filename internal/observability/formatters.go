package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/pdfprep/internal/jobs"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxListRows is the number of jobs shown by PrintJobList
	maxListRows = 20
)

// Printer handles formatted output for the CLI.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRecord outputs a summary of one job record: the outcome, and for
// complete jobs the sizes and stage timings.
func (p *Printer) PrintRecord(rec jobs.Record) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Job:      %s\n", rec.JobID))
	sb.WriteString(fmt.Sprintf("Status:   %s (%d%%)\n", rec.Status, rec.Progress))
	if rec.ErrorKind != "" {
		sb.WriteString(fmt.Sprintf("Kind:     %s\n", rec.ErrorKind))
	}
	sb.WriteString(fmt.Sprintf("Details:  %s\n", rec.Details))

	if res := rec.Result; res != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Output:   %s\n", res.Filename))
		sb.WriteString(fmt.Sprintf("Input:    %s\n", formatBytes(res.FileSize)))
		sb.WriteString(fmt.Sprintf("Text:     %d → %d characters\n", res.ExtractedLength, res.ProcessedLength))
		sb.WriteString("\n")
		sb.WriteString("Timings:\n")
		sb.WriteString(fmt.Sprintf("  • resources      %8.3fs\n", res.ResourceLoading))
		sb.WriteString(fmt.Sprintf("  • extraction     %8.3fs\n", res.Extraction))
		sb.WriteString(fmt.Sprintf("  • preprocessing  %8.3fs\n", res.Preprocessing))
		sb.WriteString(fmt.Sprintf("  • saving         %8.3fs\n", res.Saving))
		sb.WriteString(fmt.Sprintf("  • total          %8.3fs\n", res.Total))
	}

	title := "📄 PDF PROCESSING RESULT"
	if rec.Status == jobs.StatusError {
		title = "❌ PDF PROCESSING FAILED"
	}
	p.printBox(title, sb.String())
}

// PrintJobList outputs one line per job, newest first.
func (p *Printer) PrintJobList(records []jobs.Record) {
	if len(records) == 0 {
		p.printBox("JOBS", "No jobs recorded")
		return
	}

	var sb strings.Builder
	count := min(len(records), maxListRows)
	for i := 0; i < count; i++ {
		rec := records[i]
		sb.WriteString(fmt.Sprintf("%-10s %3d%%  %s\n", rec.Status, rec.Progress, rec.JobID))
	}
	if len(records) > maxListRows {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(records)-maxListRows))
	}
	p.printBox(fmt.Sprintf("JOBS (%d)", len(records)), sb.String())
}

// PrintProgress writes a single progress line, used while following a job.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(progress int, details string) {
	fmt.Fprintf(p.out, "[%3d%%] %s\n", progress, details)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
