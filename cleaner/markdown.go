package cleaner

import (
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/uniassist/models"
)

// Renderer turns stored article HTML into Markdown for the chat and MCP
// surfaces. The underlying converter is goroutine-safe, so one Renderer is
// shared by the whole process.
type Renderer struct {
	conv *converter.Converter
}

// NewRenderer creates a Renderer with the base, commonmark and table
// plugins. Tables use minimal cell padding.
func NewRenderer() *Renderer {
	return &Renderer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// ToMarkdown converts htmlContent to Markdown. Relative links and image
// sources are resolved against domain.
func (r *Renderer) ToMarkdown(htmlContent string, domain string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}
	return r.conv.ConvertString(htmlContent, converter.WithDomain(domain))
}

// RecordMarkdown renders a stored record body as Markdown. Records scraped
// without a body container have no HTML; their plain body is returned.
func (r *Renderer) RecordMarkdown(rec models.StoredContent) (string, error) {
	if rec.BodyHTML == "" {
		return rec.Body, nil
	}
	domain := ""
	if u, err := url.Parse(rec.URL); err == nil && u.Host != "" {
		domain = u.Scheme + "://" + u.Host
	}
	return r.ToMarkdown(rec.BodyHTML, domain)
}
