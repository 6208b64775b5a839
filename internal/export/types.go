// Package export renders journal entries as markdown, HTML or PDF.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// ParseFormat accepts md, markdown, html and pdf. Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q (expected md, html or pdf)", ErrUnsupportedFormat, s)
}

// Request contains parameters for an export operation
type Request struct {
	Title     string
	Content   string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Analysis  *Analysis
	Format    Format
}

// Analysis is the latest AI reflection printed under the entry.
type Analysis struct {
	Summary     string
	Emotions    []string
	Suggestions []string
	Model       string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}
