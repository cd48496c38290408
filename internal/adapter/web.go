package adapter

import (
	"context"
	"strings"

	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// awvsLevels are the numeric severity codes of AWVS exports.
var awvsLevels = map[string]string{
	"3": "high",
	"2": "medium",
	"1": "low",
	"0": "info",
}

// WebAdapter reads web-scanner exports (AWVS style): spreadsheets with one
// row per alert, or HTML reports whose "affected items" are key/value tables.
type WebAdapter struct {
	resolver *textenc.Resolver
}

// NewWebAdapter returns a web-scanner adapter.
func NewWebAdapter(resolver *textenc.Resolver) *WebAdapter {
	return &WebAdapter{resolver: resolver}
}

// Family returns model.FamilyWeb.
func (a *WebAdapter) Family() model.Family {
	return model.FamilyWeb
}

// Parse reads an xlsx, csv or html export.
func (a *WebAdapter) Parse(ctx context.Context, doc Document) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readTabular(doc, a.Family(), a.resolver, htmlKeyValue)
}

// Refine rewrites the severity spelling variants of web scanners
// ("Medium severity", "high risk", "3") into vocabulary tokens.
func (a *WebAdapter) Refine(row *model.MappedRow) ([]model.Warning, error) {
	if risk := row.Get(model.FieldRisk); risk != "" {
		row.Set(model.FieldRisk, NormalizeWebRisk(risk))
	}
	return nil, nil
}

// NormalizeWebRisk strips the decorations web scanners add around a level.
func NormalizeWebRisk(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	if level, ok := awvsLevels[v]; ok {
		return level
	}
	for _, suffix := range []string{"severity", "risk", "level"} {
		v = strings.TrimSpace(strings.TrimSuffix(v, suffix))
	}
	if v == "" {
		return strings.TrimSpace(s)
	}
	return v
}
