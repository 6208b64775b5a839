package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/russross/blackfriday/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var entryTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/entry.html")
	if err != nil {
		entryTemplate = template.Must(template.New("entry").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	entryTemplate = template.Must(template.New("entry").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for entry template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Analysis    *Analysis
}

// RenderMarkdown converts entry markdown to HTML. Raw HTML in the source is
// dropped.
func RenderMarkdown(md string) template.HTML {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.SkipHTML,
	})
	out := blackfriday.Run([]byte(md),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer),
	)
	return template.HTML(out)
}

func RenderEntryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := entryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ContentHTML}}</div>
  {{with .Analysis}}<section><h2>Reflection</h2><p>{{.Summary}}</p></section>{{end}}
</body>
</html>`
