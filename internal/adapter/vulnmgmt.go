package adapter

import (
	"context"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// VulnMgmtAdapter reads vulnerability-management exports (Nessus style).
// When a plugin reference table is configured, referenced plugins get its
// localized name, risk, description and remediation.
type VulnMgmtAdapter struct {
	resolver *textenc.Resolver
	plugins  map[string]config.PluginReference
}

// NewVulnMgmtAdapter returns a vulnerability-management adapter.
func NewVulnMgmtAdapter(resolver *textenc.Resolver, plugins map[string]config.PluginReference) *VulnMgmtAdapter {
	return &VulnMgmtAdapter{resolver: resolver, plugins: plugins}
}

// Family returns model.FamilyVulnMgmt.
func (a *VulnMgmtAdapter) Family() model.Family {
	return model.FamilyVulnMgmt
}

// Parse reads a csv or xlsx export.
func (a *VulnMgmtAdapter) Parse(ctx context.Context, doc Document) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readTabular(doc, a.Family(), a.resolver, htmlGrid)
}

// Refine combines synopsis and description and applies the plugin reference.
func (a *VulnMgmtAdapter) Refine(row *model.MappedRow) ([]model.Warning, error) {
	synopsis, desc := row.Get(model.FieldSynopsis), row.Get(model.FieldDescription)
	switch {
	case synopsis != "" && desc != "" && synopsis != desc:
		row.Set(model.FieldDescription, synopsis+"\n"+desc)
	case desc == "":
		row.Set(model.FieldDescription, synopsis)
	}

	id := row.Get(model.FieldPluginID)
	if id == "" || len(a.plugins) == 0 {
		return nil, nil
	}
	ref, ok := a.plugins[id]
	if !ok {
		return []model.Warning{{
			Kind:    model.WarningMissingReference,
			File:    row.Raw.OriginFile,
			Message: "plugin " + id + " (" + row.Get(model.FieldName) + ") has no reference entry",
		}}, nil
	}
	if ref.Name != "" {
		row.Set(model.FieldName, ref.Name)
	}
	if ref.Risk != "" {
		row.Set(model.FieldRisk, ref.Risk)
	}
	if ref.Description != "" {
		row.Set(model.FieldDescription, ref.Description)
	}
	if ref.Remediation != "" {
		row.Set(model.FieldRemediation, ref.Remediation)
	}
	return nil, nil
}
