package normalize

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/model"
)

// TestFoldHeader tests header normalization.
func TestFoldHeader(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{"IP 地址", "ip地址"},
		{"ＩＰ＿地址", "ip地址"},
		{" Risk-Level: ", "risklevel"},
		{"漏洞名称，", "漏洞名称"},
		{"Plugin ID", "pluginid"},
		{"协议/端口", "协议/端口"},
	}
	for _, tc := range testCases {
		if got := FoldHeader(tc.in); got != tc.want {
			t.Errorf("FoldHeader(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestColumnMapperMap tests the two-pass binding.
func TestColumnMapperMap(t *testing.T) {
	t.Parallel()

	t.Run("exact synonyms bind across languages", func(t *testing.T) {
		t.Parallel()
		m := NewColumnMapper(config.DefaultColumnTable(model.FamilyHost))
		b, err := m.Map([]string{"IP地址", "端口", "漏洞名称", "风险等级", "加固建议", "备注"})
		if err != nil {
			t.Fatal(err)
		}
		want := map[model.Field]string{
			model.FieldIP:          "IP地址",
			model.FieldPort:        "端口",
			model.FieldName:        "漏洞名称",
			model.FieldRisk:        "风险等级",
			model.FieldRemediation: "加固建议",
		}
		for f, h := range want {
			got, ok := b.Header(f)
			if !ok || got != h {
				t.Errorf("field %s bound to %q (%v), want %q", f, got, ok, h)
			}
		}
		if !reflect.DeepEqual(b.Passthrough(), []string{"备注"}) {
			t.Errorf("Passthrough() = %v", b.Passthrough())
		}
	})

	t.Run("exact match wins over an earlier fuzzy candidate", func(t *testing.T) {
		t.Parallel()
		table := config.ColumnTable{
			{Field: model.FieldDescription, Synonyms: []string{"描述"}, Fuzzy: true},
		}
		m := NewColumnMapper(table)
		b, err := m.Map([]string{"漏洞描述补充", "描述"})
		if err != nil {
			t.Fatal(err)
		}
		if h, _ := b.Header(model.FieldDescription); h != "描述" {
			t.Errorf("bound to %q, want the exact header", h)
		}
	})

	t.Run("fuzzy only applies to fuzzy fields", func(t *testing.T) {
		t.Parallel()
		table := config.ColumnTable{
			{Field: model.FieldName, Synonyms: []string{"name"}},
			{Field: model.FieldRisk, Synonyms: []string{"risk"}, Fuzzy: true},
		}
		m := NewColumnMapper(table)
		b, err := m.Map([]string{"vuln name", "risk rating"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := b.Header(model.FieldName); ok {
			t.Error("non-fuzzy field must not bind by substring")
		}
		if h, _ := b.Header(model.FieldRisk); h != "risk rating" {
			t.Errorf("risk bound to %q", h)
		}
	})

	t.Run("fuzzy latin synonyms match whole words", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name    string
			family  model.Family
			headers []string
			want    map[model.Field]string
		}{
			{
				name:    "date column is not a port",
				family:  model.FamilyHost,
				headers: []string{"IP", "漏洞名称", "风险等级", "Report Date"},
				want:    map[model.Field]string{model.FieldIP: "IP", model.FieldPort: ""},
			},
			{
				name:    "export and support are not ports",
				family:  model.FamilyPort,
				headers: []string{"Host", "Export", "Support"},
				want:    map[model.Field]string{model.FieldIP: "Host", model.FieldPort: ""},
			},
			{
				name:    "description and script output are not addresses",
				family:  model.FamilyHost,
				headers: []string{"Description", "Script Output", "Recipient", "端口"},
				want:    map[model.Field]string{model.FieldIP: "", model.FieldDescription: "Description"},
			},
			{
				name:    "recipient is not an address",
				family:  model.FamilyPort,
				headers: []string{"Recipient", "Port"},
				want:    map[model.Field]string{model.FieldIP: "", model.FieldPort: "Port"},
			},
			{
				name:    "word inside a longer header",
				family:  model.FamilyHost,
				headers: []string{"Asset IP (internal)", "Service Port", "Vulnerability Name"},
				want: map[model.Field]string{
					model.FieldIP:   "Asset IP (internal)",
					model.FieldPort: "Service Port",
					model.FieldName: "Vulnerability Name",
				},
			},
			{
				name:    "latin word next to cjk text",
				family:  model.FamilyHost,
				headers: []string{"IP地址(内网)", "端口信息"},
				want:    map[model.Field]string{model.FieldIP: "IP地址(内网)", model.FieldPort: "端口信息"},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()
				b, err := NewColumnMapper(config.DefaultColumnTable(tc.family)).Map(tc.headers)
				if err != nil {
					t.Fatal(err)
				}
				for f, want := range tc.want {
					if got, _ := b.Header(f); got != want {
						t.Errorf("field %s bound to %q, want %q", f, got, want)
					}
				}
			})
		}
	})

	t.Run("a header is claimed once", func(t *testing.T) {
		t.Parallel()
		table := config.ColumnTable{
			{Field: model.FieldName, Synonyms: []string{"名称"}},
			{Field: model.FieldDescription, Synonyms: []string{"名称"}},
		}
		b, err := NewColumnMapper(table).Map([]string{"名称"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := b.Header(model.FieldDescription); ok {
			t.Error("second field stole a claimed header")
		}
		if !reflect.DeepEqual(b.Fields(), []model.Field{model.FieldName}) {
			t.Errorf("Fields() = %v", b.Fields())
		}
	})

	t.Run("no bound field is a schema error", func(t *testing.T) {
		t.Parallel()
		m := NewColumnMapper(config.DefaultColumnTable(model.FamilyVulnMgmt))
		_, err := m.Map([]string{"foo", "bar"})
		var schemaErr *SchemaMappingError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaMappingError, got %v", err)
		}
		if !reflect.DeepEqual(schemaErr.Headers, []string{"foo", "bar"}) {
			t.Errorf("Headers = %v", schemaErr.Headers)
		}
	})

	t.Run("mapping is deterministic", func(t *testing.T) {
		t.Parallel()
		m := NewColumnMapper(config.DefaultColumnTable(model.FamilyWeb))
		headers := []string{"风险名称", "风险等级", "风险地址", "风险描述", "整改意见", "风险目标"}
		first, err := m.Map(headers)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 20; i++ {
			again, err := m.Map(headers)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(first, again) {
				t.Fatal("binding changed between calls")
			}
		}
	})
}

// TestHeaderWords tests the word split used by fuzzy matching.
func TestHeaderWords(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want []string
	}{
		{"Report Date", []string{"report", "date"}},
		{"IP地址(内网)", []string{"ip", "地址", "内网"}},
		{"protocol/port", []string{"protocol", "port"}},
		{"ＳＣＲＩＰＴ_OUTPUT", []string{"script", "output"}},
		{" - ", nil},
	}
	for _, tc := range testCases {
		if got := headerWords(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("headerWords(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestBindingApply tests projection of a raw record.
func TestBindingApply(t *testing.T) {
	t.Parallel()

	m := NewColumnMapper(config.DefaultColumnTable(model.FamilyHost))
	b, err := m.Map([]string{"IP", "漏洞名称", "资产负责人"})
	if err != nil {
		t.Fatal(err)
	}
	row := b.Apply(model.RawRecord{Fields: map[string]string{
		"IP":    " 10.0.0.1 ",
		"漏洞名称":  "弱口令",
		"资产负责人": "ops",
	}})
	if row.Get(model.FieldIP) != "10.0.0.1" {
		t.Errorf("ip = %q", row.Get(model.FieldIP))
	}
	if row.Passthrough["资产负责人"] != "ops" {
		t.Errorf("passthrough = %v", row.Passthrough)
	}
}
