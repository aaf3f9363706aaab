package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/llmtypes"
)

// HTMLExporter renders transcripts as standalone HTML documents.
// Message bodies are Markdown; raw HTML inside them is escaped.
type HTMLExporter struct {
	markdown     goldmark.Markdown
	htmlTemplate *template.Template
}

// htmlDocument is the data for template rendering
type htmlDocument struct {
	Title      string
	Meta       Metadata
	Totals     Totals
	Messages   []htmlMessage
	CSS        template.CSS
	ExportedAt string
}

type htmlMessage struct {
	Role        string
	Body        template.HTML
	Model       string
	Tokens      string
	ToolCalls   []conversation.ToolCallRecord
	Suggestions []conversation.SuggestedUpdate
	CreatedAt   string
}

// NewHTMLExporter creates an exporter with GitHub Flavored Markdown and syntax highlighting
func NewHTMLExporter() (*HTMLExporter, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	tmpl, err := template.New("transcript").Parse(transcriptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to load HTML template: %w", err)
	}

	return &HTMLExporter{markdown: md, htmlTemplate: tmpl}, nil
}

// Export renders the transcript
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	doc := ToJSONDocument(t)
	data := htmlDocument{
		Title:      doc.Metadata.Title,
		Meta:       doc.Metadata,
		Totals:     doc.Totals,
		CSS:        template.CSS(defaultCSS),
		ExportedAt: t.ExportedAt.Format("2006-01-02 15:04:05"),
	}

	for _, m := range t.Messages {
		var body bytes.Buffer
		if err := e.markdown.Convert([]byte(m.Content), &body); err != nil {
			return nil, fmt.Errorf("failed to convert message %s: %w", m.ID, err)
		}
		hm := htmlMessage{
			Role:        string(m.Role),
			Body:        template.HTML(body.String()),
			Model:       m.Model,
			ToolCalls:   m.ToolCalls,
			Suggestions: m.Suggestions,
			CreatedAt:   m.CreatedAt.Format("2006-01-02 15:04"),
		}
		if m.Role == llmtypes.RoleAssistant {
			hm.Tokens = fmt.Sprintf("%d in / %d out", m.TokensIn, m.TokensOut)
		}
		data.Messages = append(data.Messages, hm)
	}

	var out bytes.Buffer
	if err := e.htmlTemplate.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return out.Bytes(), nil
}

const transcriptTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="generator" content="crmassist">
    <title>{{.Title}}</title>
    <style>{{.CSS}}</style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            <p class="meta">
                {{if .Meta.EntityType}}{{.Meta.EntityType}} {{.Meta.EntityID}} &middot; {{end}}{{.Meta.Provider}}
                &middot; {{.Totals.Messages}} messages &middot; {{.Totals.TotalTokens}} tokens &middot; {{.Totals.ToolCalls}} tool calls
            </p>
        </header>
        <main>
            {{range .Messages}}
            <section class="message {{.Role}}">
                <div class="role">{{.Role}}{{if .Model}} &middot; {{.Model}}{{end}}{{if .Tokens}} &middot; {{.Tokens}}{{end}} <span class="time">{{.CreatedAt}}</span></div>
                <div class="body">{{.Body}}</div>
                {{if .ToolCalls}}
                <ul class="tools">
                    {{range .ToolCalls}}<li><code>{{.Name}}</code> {{.Status}}{{if .Error}}: {{.Error}}{{end}}</li>{{end}}
                </ul>
                {{end}}
                {{if .Suggestions}}
                <table class="suggestions">
                    <tr><th>Record</th><th>Field</th><th>Value</th><th>Confidence</th></tr>
                    {{range .Suggestions}}<tr><td>{{.EntityType}} {{.EntityID}}</td><td>{{.Field}}</td><td>{{.Value}}</td><td>{{printf "%.2f" .Confidence}}</td></tr>{{end}}
                </table>
                {{end}}
            </section>
            {{end}}
        </main>
        <footer>
            <p>Exported on {{.ExportedAt}} UTC by crmassist</p>
        </footer>
    </div>
</body>
</html>`

const defaultCSS = `
* { box-sizing: border-box; }
body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
    line-height: 1.6;
    color: #24292f;
    margin: 0;
}
.container { max-width: 880px; margin: 0 auto; padding: 40px; }
header { border-bottom: 1px solid #d0d7de; margin-bottom: 24px; }
.meta, .time, footer { color: #57606a; font-size: 13px; }
.message { border: 1px solid #d0d7de; border-radius: 6px; margin-bottom: 16px; padding: 12px 16px; }
.message.user { background-color: #f6f8fa; }
.role { font-weight: 600; font-size: 13px; text-transform: uppercase; }
.time { float: right; font-weight: normal; text-transform: none; }
pre { background-color: #f6f8fa; border-radius: 6px; overflow: auto; padding: 12px; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size: 85%; }
.tools { font-size: 13px; color: #57606a; }
table.suggestions { border-collapse: collapse; width: 100%; font-size: 13px; }
table.suggestions th, table.suggestions td { border: 1px solid #d0d7de; padding: 4px 8px; text-align: left; }
`
