package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/vulnmerge/internal/model"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults must be intentional; these tests fail if they drift.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 10 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 10*time.Minute {
			t.Errorf("expected Timeout to be 10m, got %v", cfg.Timeout)
		}
	})

	t.Run("default Concurrency is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 4 {
			t.Errorf("expected Concurrency to be 4, got %d", cfg.Concurrency)
		}
	})

	t.Run("default output", func(t *testing.T) {
		t.Parallel()
		if cfg.OutputDir != DefaultOutputDir || cfg.WorkbookName != DefaultWorkbookName {
			t.Errorf("unexpected output %q %q", cfg.OutputDir, cfg.WorkbookName)
		}
		if cfg.WorkbookPath() != filepath.Join(DefaultOutputDir, DefaultWorkbookName) {
			t.Errorf("unexpected workbook path %q", cfg.WorkbookPath())
		}
	})

	t.Run("history is on and accumulation off", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB || cfg.Accumulate {
			t.Errorf("expected SaveToDB=true Accumulate=false, got %v %v", cfg.SaveToDB, cfg.Accumulate)
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("no threshold and no inputs", func(t *testing.T) {
		t.Parallel()
		if cfg.MinRisk != "" || cfg.InputCount() != 0 {
			t.Errorf("unexpected MinRisk %q or inputs %v", cfg.MinRisk, cfg.Inputs)
		}
	})
}

// TestConfigAddInputs tests collecting input paths.
func TestConfigAddInputs(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.AddInputs(model.FamilyHost, "a.xlsx", " ", "b.csv ")
	cfg.AddInputs(model.FamilyPort, "scan.xml")

	if cfg.InputCount() != 3 {
		t.Fatalf("expected 3 inputs, got %d", cfg.InputCount())
	}
	if got := cfg.Inputs[model.FamilyHost]; len(got) != 2 || got[1] != "b.csv" {
		t.Errorf("unexpected host inputs %v", got)
	}
}

// TestConfigValidate tests the Validate method.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	// validConfig returns a minimal valid configuration.
	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.AddInputs(model.FamilyHost, "rsas.xlsx")
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "valid config returns nil"},
		{
			name:   "threshold label is valid",
			modify: func(c *Config) { c.MinRisk = "High" },
		},
		{
			name:    "no input returns ErrNoInput",
			modify:  func(c *Config) { c.Inputs = nil },
			wantErr: ErrNoInput,
		},
		{
			name:    "blank output returns ErrNoOutputDir",
			modify:  func(c *Config) { c.OutputDir = "  " },
			wantErr: ErrNoOutputDir,
		},
		{
			name:    "zero timeout returns ErrInvalidTimeout",
			modify:  func(c *Config) { c.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative concurrency returns ErrInvalidConcurrency",
			modify:  func(c *Config) { c.Concurrency = -1 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name: "json and markdown both enabled returns ErrConflictingReportFormats",
			modify: func(c *Config) {
				c.JSONReport = true
				c.MarkdownReport = true
			},
			wantErr: ErrConflictingReportFormats,
		},
		{
			name:    "unknown threshold returns ErrInvalidMinRisk",
			modify:  func(c *Config) { c.MinRisk = "severe" },
			wantErr: ErrInvalidMinRisk,
		},
		{
			name: "accumulate without history returns ErrAccumulateWithoutHistory",
			modify: func(c *Config) {
				c.Accumulate = true
				c.SaveToDB = false
			},
			wantErr: ErrAccumulateWithoutHistory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			if tt.modify != nil {
				tt.modify(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestFileColumnTable tests column overrides from the configuration file.
func TestFileColumnTable(t *testing.T) {
	t.Parallel()

	t.Run("nil file returns the built-in table", func(t *testing.T) {
		t.Parallel()

		var cf *File
		got := cf.ColumnTable(model.FamilyHost)
		if len(got) != len(DefaultColumnTable(model.FamilyHost)) {
			t.Errorf("expected built-in table, got %d rules", len(got))
		}
	})

	t.Run("extends, replaces and appends", func(t *testing.T) {
		t.Parallel()

		cf := &File{Columns: map[string]ColumnTable{
			"host": {
				{Field: model.FieldName, Synonyms: []string{"问题名称"}},
				{Field: model.FieldRisk, Synonyms: []string{"危害"}, Replace: true},
				{Field: model.FieldPluginID, Synonyms: []string{"检查项"}, Fuzzy: true},
			},
		}}
		table := cf.ColumnTable(model.FamilyHost)

		rules := make(map[model.Field]ColumnRule)
		for _, r := range table {
			rules[r.Field] = r
		}
		if name := rules[model.FieldName]; name.Synonyms[0] != "问题名称" || len(name.Synonyms) < 2 {
			t.Errorf("expected override first with built-ins kept, got %v", name.Synonyms)
		}
		if risk := rules[model.FieldRisk]; len(risk.Synonyms) != 1 || risk.Synonyms[0] != "危害" {
			t.Errorf("expected replaced synonyms, got %v", risk.Synonyms)
		}
		if last := table[len(table)-1]; last.Field != model.FieldPluginID || !last.Fuzzy {
			t.Errorf("expected appended plugin rule, got %+v", last)
		}
		if got := DefaultColumnTable(model.FamilyHost); len(got) == len(table) {
			t.Error("built-in table must not be modified")
		}
	})
}

// TestFileSettings tests the vocabulary, plugin and danger settings.
func TestFileSettings(t *testing.T) {
	t.Parallel()

	cf := &File{
		RiskTokens:           map[string]string{"致命": "Critical"},
		Plugins:              map[string]PluginReference{"10107": {Name: "HTTP 服务器类型"}},
		DangerousPorts:       []int{8080},
		DangerousRemediation: "close it",
	}

	v := cf.Vocabulary()
	if v["致命"] != model.SeverityCritical || v["high"] != model.SeverityHigh {
		t.Errorf("unexpected vocabulary entries %v %v", v["致命"], v["high"])
	}

	plugins := cf.PluginTable()
	plugins["x"] = PluginReference{}
	if _, ok := cf.Plugins["x"]; ok {
		t.Error("PluginTable must return a copy")
	}

	p := cf.DangerPolicy()
	if !p.Ports[8080] || p.Ports[3306] {
		t.Errorf("expected the port list to be replaced, got %v", p.Ports)
	}
	if len(p.Services) == 0 || p.Remediation != "close it" {
		t.Errorf("unexpected policy %+v", p)
	}

	var empty *File
	if empty.DangerPolicy().Remediation != DefaultDangerRemediation {
		t.Error("nil file must return the default policy")
	}
	if names := empty.EncodingNames(); len(names) == 0 {
		t.Error("nil file must return the default encodings")
	}
}

// TestFileValidate tests validation of the configuration file.
func TestFileValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    File
		wantErr error
	}{
		{name: "valid", file: File{Encodings: []string{"utf-8", "gbk"}, RiskTokens: map[string]string{"x": "Low"}}},
		{name: "unknown encoding", file: File{Encodings: []string{"klingon"}}, wantErr: ErrInvalidEncoding},
		{name: "unknown risk label", file: File{RiskTokens: map[string]string{"x": "Severe"}}, wantErr: ErrInvalidRiskToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.file.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("unknown family in columns", func(t *testing.T) {
		t.Parallel()

		cf := File{Columns: map[string]ColumnTable{"firewall": nil}}
		if err := cf.Validate(); err == nil {
			t.Error("expected error for unknown family")
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.vulnmerge")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `encodings: [utf-8-sig, utf-8, gb18030]
columns:
  web:
    - field: vulnerability_name
      synonyms: ["漏洞类型"]
riskTokens:
  致命: Critical
plugins:
  "10107":
    name: HTTP 服务器类型和版本
    risk: 信息
dangerousPorts: [21, 23]
`
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Encodings) != 3 {
			t.Errorf("expected 3 encodings, got %v", cfg.Encodings)
		}
		if rules := cfg.Columns["web"]; len(rules) != 1 || rules[0].Field != model.FieldName {
			t.Errorf("unexpected web columns %+v", rules)
		}
		if cfg.Plugins["10107"].Risk != "信息" {
			t.Errorf("unexpected plugin %+v", cfg.Plugins["10107"])
		}
		if len(cfg.DangerousPorts) != 2 {
			t.Errorf("expected 2 dangerous ports, got %v", cfg.DangerousPorts)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("columns: [unclosed"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns validation error", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("riskTokens:\n  x: Severe\n"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		_, err := LoadConfigFile(configPath)
		if !errors.Is(err, ErrInvalidRiskToken) {
			t.Errorf("expected ErrInvalidRiskToken, got %v", err)
		}
	})

	t.Run("initializes nil maps", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("encodings: [utf-8]\n"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Columns == nil || cfg.Plugins == nil {
			t.Error("expected maps to be initialized")
		}
	})
}

// TestFindConfigFile tests the explicit path lookup.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit existing path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("explicit missing path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty path, got %q", got)
		}
	})
}

// TestDefaultColumnTable tests that every family has a table.
func TestDefaultColumnTable(t *testing.T) {
	t.Parallel()

	for _, f := range model.AllFamilies() {
		table := DefaultColumnTable(f)
		if len(table) == 0 {
			t.Errorf("family %s has no column table", f)
		}
		hasName := false
		for _, r := range table {
			if r.Field == model.FieldName {
				hasName = true
			}
			if len(r.Synonyms) == 0 {
				t.Errorf("family %s field %s has no synonyms", f, r.Field)
			}
		}
		if !hasName {
			t.Errorf("family %s cannot bind a vulnerability name", f)
		}
	}
	if DefaultColumnTable(model.Family("firewall")) != nil {
		t.Error("unknown family must have no table")
	}
}

// TestDefaultVocabulary tests a few spellings of each level.
func TestDefaultVocabulary(t *testing.T) {
	t.Parallel()

	v := DefaultVocabulary()
	for token, want := range map[string]model.Severity{
		"紧急":  model.SeverityCritical,
		"高危":  model.SeverityHigh,
		"中":   model.SeverityMedium,
		"low": model.SeverityLow,
		"信息":  model.SeverityInfo,
	} {
		if got, ok := v[token]; !ok || got != want {
			t.Errorf("vocabulary[%q] = %v, want %v", token, got, want)
		}
	}
	for token := range v {
		if token != strings.ToLower(token) {
			t.Errorf("token %q is not lower case", token)
		}
	}
}
