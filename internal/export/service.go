package export

import (
	"context"
	"fmt"
	"strings"
)

type pdfRenderer func(ctx context.Context, html, title string) (*Result, error)

// Service provides entry export functionality
type Service struct {
	renderPDF pdfRenderer
}

func NewService() *Service {
	return &Service{renderPDF: exportPDF}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatMarkdown, "":
		return &Result{
			Data:     []byte(Markdown(req)),
			Filename: sanitizeFilename(req.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatHTML, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	html, err := RenderEntryHTML(templateDataFor(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	if req.Format == FormatHTML {
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}
	return s.renderPDF(ctx, html, req.Title)
}

// Markdown is the entry as a standalone markdown document.
func Markdown(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.Join(strings.Fields(req.Title), " "))
	if !req.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "_%s_\n\n", req.CreatedAt.Format("January 2, 2006"))
	}
	b.WriteString(strings.TrimRight(req.Content, "\n"))
	b.WriteString("\n")

	if a := req.Analysis; a != nil {
		b.WriteString("\n---\n\n## Reflection\n\n")
		b.WriteString(a.Summary)
		b.WriteString("\n")
		if len(a.Emotions) > 0 {
			fmt.Fprintf(&b, "\n**Emotions:** %s\n", strings.Join(a.Emotions, ", "))
		}
		if len(a.Suggestions) > 0 {
			b.WriteString("\n**Suggestions:**\n\n")
			for _, s := range a.Suggestions {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
	}
	return b.String()
}

func templateDataFor(req Request) TemplateData {
	return TemplateData{
		Title:       req.Title,
		ContentHTML: RenderMarkdown(req.Content),
		Author:      req.Author,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
		Analysis:    req.Analysis,
	}
}
