package config

import (
	"fmt"

	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// ColumnRule lists the header synonyms that bind to one canonical field.
// Synonyms are in priority order.
type ColumnRule struct {
	Field    model.Field `yaml:"field"`
	Synonyms []string    `yaml:"synonyms"`
	// Fuzzy allows a synonym to match as a substring of a header when no
	// header matched exactly.
	Fuzzy bool `yaml:"fuzzy,omitempty"`
	// Replace drops the built-in synonyms of the field instead of extending them.
	Replace bool `yaml:"replace,omitempty"`
}

// ColumnTable is an ordered list of rules. Declaration order is priority
// order: an earlier field claims a header before a later one.
type ColumnTable []ColumnRule

// Clone returns an independent copy of t.
func (t ColumnTable) Clone() ColumnTable {
	out := make(ColumnTable, len(t))
	for i, r := range t {
		r.Synonyms = append([]string(nil), r.Synonyms...)
		out[i] = r
	}
	return out
}

// PluginReference holds the localized text for one vulnerability-management
// plugin id.
type PluginReference struct {
	Name        string `yaml:"name,omitempty"`
	Risk        string `yaml:"risk,omitempty"`
	Description string `yaml:"description,omitempty"`
	Remediation string `yaml:"remediation,omitempty"`
}

// File represents the structure of the .vulnmerge configuration file.
type File struct {
	// Encodings is the decoding ladder tried for text inputs, by WHATWG name.
	// "utf-8-sig" requires a byte order mark.
	Encodings []string `yaml:"encodings,omitempty"`

	// Columns extends the built-in column tables, keyed by family name.
	Columns map[string]ColumnTable `yaml:"columns,omitempty"`

	// RiskTokens adds source labels to the risk vocabulary. Values are level
	// labels such as "High".
	RiskTokens map[string]string `yaml:"riskTokens,omitempty"`

	// Plugins maps vulnerability-management plugin ids to reference text.
	Plugins map[string]PluginReference `yaml:"plugins,omitempty"`

	// DangerousPorts replaces the built-in list of ports that must not be exposed.
	DangerousPorts []int `yaml:"dangerousPorts,omitempty"`

	// DangerousServices replaces the built-in list of risky service names.
	DangerousServices []string `yaml:"dangerousServices,omitempty"`

	// DangerousRemediation is the remediation text set on flagged ports.
	DangerousRemediation string `yaml:"dangerousRemediation,omitempty"`
}

// Validate checks the names and labels in the file.
func (cf *File) Validate() error {
	for _, name := range cf.Encodings {
		if _, err := textenc.Lookup(name); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidEncoding, name)
		}
	}
	for token, label := range cf.RiskTokens {
		if _, err := model.ParseSeverityLabel(label); err != nil {
			return fmt.Errorf("%w: %q maps to %q", ErrInvalidRiskToken, token, label)
		}
	}
	for family := range cf.Columns {
		if _, err := model.ParseFamily(family); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
	}
	return nil
}

// EncodingNames returns the configured decoding ladder or the default one.
func (cf *File) EncodingNames() []string {
	if cf == nil || len(cf.Encodings) == 0 {
		return textenc.DefaultCandidates()
	}
	return append([]string(nil), cf.Encodings...)
}

// ColumnTable returns the column table of a family with the file's
// overrides applied. Synonyms from the file come before the built-in ones;
// fields the built-in table does not know are appended.
func (cf *File) ColumnTable(family model.Family) ColumnTable {
	table := DefaultColumnTable(family)
	if cf == nil {
		return table
	}
	overrides, ok := cf.Columns[string(family)]
	if !ok {
		return table
	}

	for _, o := range overrides {
		idx := -1
		for i := range table {
			if table[i].Field == o.Field {
				idx = i
				break
			}
		}
		if idx < 0 {
			table = append(table, ColumnRule{Field: o.Field, Synonyms: append([]string(nil), o.Synonyms...), Fuzzy: o.Fuzzy})
			continue
		}
		if o.Replace {
			table[idx].Synonyms = append([]string(nil), o.Synonyms...)
		} else {
			table[idx].Synonyms = append(append([]string(nil), o.Synonyms...), table[idx].Synonyms...)
		}
		if o.Fuzzy {
			table[idx].Fuzzy = true
		}
	}
	return table
}

// Vocabulary returns the default risk vocabulary extended with the file's tokens.
func (cf *File) Vocabulary() model.Vocabulary {
	v := DefaultVocabulary()
	if cf == nil {
		return v
	}
	for token, label := range cf.RiskTokens {
		s, err := model.ParseSeverityLabel(label)
		if err != nil {
			continue
		}
		v[token] = s
	}
	return v
}

// PluginTable returns the plugin reference entries. The result is never nil.
func (cf *File) PluginTable() map[string]PluginReference {
	out := make(map[string]PluginReference)
	if cf == nil {
		return out
	}
	for id, ref := range cf.Plugins {
		out[id] = ref
	}
	return out
}

// DangerPolicy returns the dangerous port settings.
func (cf *File) DangerPolicy() DangerPolicy {
	p := DefaultDangerPolicy()
	if cf == nil {
		return p
	}
	if len(cf.DangerousPorts) > 0 {
		p.Ports = make(map[int]bool, len(cf.DangerousPorts))
		for _, port := range cf.DangerousPorts {
			p.Ports[port] = true
		}
	}
	if len(cf.DangerousServices) > 0 {
		p.Services = append([]string(nil), cf.DangerousServices...)
	}
	if cf.DangerousRemediation != "" {
		p.Remediation = cf.DangerousRemediation
	}
	return p
}
