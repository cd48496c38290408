package adapter

import (
	"context"

	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// HostAdapter reads host-assessment exports (RSAS style). One row is one
// finding; the column names vary between versions and locales.
type HostAdapter struct {
	resolver *textenc.Resolver
}

// NewHostAdapter returns a host-assessment adapter.
func NewHostAdapter(resolver *textenc.Resolver) *HostAdapter {
	return &HostAdapter{resolver: resolver}
}

// Family returns model.FamilyHost.
func (a *HostAdapter) Family() model.Family {
	return model.FamilyHost
}

// Parse reads an xlsx, csv or html export.
func (a *HostAdapter) Parse(ctx context.Context, doc Document) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readTabular(doc, a.Family(), a.resolver, htmlGrid)
}

// Refine leaves host rows unchanged.
func (a *HostAdapter) Refine(_ *model.MappedRow) ([]model.Warning, error) {
	return nil, nil
}
