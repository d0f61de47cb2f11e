package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const groupFormatRules = `
groups:
  - name: cpu_alerts
    rules:
      - alert: HighCPU
        expr: avg(cpu) > 0.9
        for: 5m
        labels:
          severity: critical
`

const singleRuleFormat = `
alert: TargetDown
expr: up == 0
for: 10m
`

func TestLoadRules_GroupFormat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/cpu.yaml", groupFormatRules)

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Empty(t, fileErrors)
	require.Len(t, records, 1)

	assert.Equal(t, "cpu", records[0].Name)
	var parsed struct {
		Groups []struct {
			Name  string `json:"name"`
			Rules []struct {
				Alert string `json:"alert"`
				Expr  string `json:"expr"`
			} `json:"rules"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(records[0].Payload, &parsed))
	require.Len(t, parsed.Groups, 1)
	assert.Equal(t, "cpu_alerts", parsed.Groups[0].Name)
	require.Len(t, parsed.Groups[0].Rules, 1)
	assert.Equal(t, "HighCPU", parsed.Groups[0].Rules[0].Alert)
}

func TestLoadRules_SingleRuleFormatIsWrapped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/nested/up.rule", singleRuleFormat)

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Empty(t, fileErrors)
	require.Len(t, records, 1)

	assert.Equal(t, "nested_up", records[0].Name)
	var parsed ruleFile
	require.NoError(t, json.Unmarshal(records[0].Payload, &parsed))
	require.Len(t, parsed.Groups, 1)
	assert.Equal(t, "nested_up_alerts", parsed.Groups[0].Name)
	assert.Equal(t, "TargetDown", parsed.Groups[0].Rules[0].Alert)
}

func TestLoadRules_UnmodeledFieldsPreserved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/cpu.yaml", `
groups:
  - name: cpu_alerts
    limit: 5
    rules:
      - alert: HighCPU
        expr: avg(cpu) > 0.9
        keep_firing_for: 10m
        custom_key: custom_value
`)

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Empty(t, fileErrors)
	require.Len(t, records, 1)

	var parsed struct {
		Groups []struct {
			Name  string `json:"name"`
			Limit int    `json:"limit"`
			Rules []struct {
				Alert         string `json:"alert"`
				KeepFiringFor string `json:"keep_firing_for"`
				CustomKey     string `json:"custom_key"`
			} `json:"rules"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(records[0].Payload, &parsed))
	require.Len(t, parsed.Groups, 1)
	assert.Equal(t, 5, parsed.Groups[0].Limit)
	require.Len(t, parsed.Groups[0].Rules, 1)
	assert.Equal(t, "10m", parsed.Groups[0].Rules[0].KeepFiringFor)
	assert.Equal(t, "custom_value", parsed.Groups[0].Rules[0].CustomKey)
}

func TestLoadRules_WrappedRuleKeepsAllFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/up.rule", `
alert: TargetDown
expr: up == 0
keep_firing_for: 5m
annotations:
  summary: target is down
`)

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Empty(t, fileErrors)
	require.Len(t, records, 1)

	var parsed struct {
		Groups []struct {
			Rules []map[string]any `json:"rules"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(records[0].Payload, &parsed))
	rule := parsed.Groups[0].Rules[0]
	assert.Equal(t, "5m", rule["keep_firing_for"])
	assert.Equal(t, map[string]any{"summary": "target is down"}, rule["annotations"])
}

func TestLoadRules_MalformedFileDoesNotBlockSiblings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/good.yaml", groupFormatRules)
	writeFile(t, root, "rules/also-good.rule", singleRuleFormat)
	writeFile(t, root, "rules/bad.yaml", "groups: [ {name: broken")

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, fileErrors, 1)
	assert.Contains(t, fileErrors[0].Path, "bad.yaml")
}

func TestLoadRules_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errSub  string
	}{
		{"group without name", "groups:\n  - rules:\n      - alert: A\n        expr: up\n", "without a name"},
		{"group without rules", "groups:\n  - name: empty\n", "no rules"},
		{"rule without expr", "alert: A\n", "no 'expr'"},
		{"rule with alert and record", "alert: A\nrecord: r\nexpr: up\n", "both"},
		{"rule with neither", "expr: up\n", "neither"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, root, "rules/r.yaml", test.content)

			records, fileErrors, err := LoadRules(root, "rules")
			require.NoError(t, err)
			assert.Empty(t, records)
			require.Len(t, fileErrors, 1)
			assert.Contains(t, fileErrors[0].Err.Error(), test.errSub)
		})
	}
}

func TestLoadRules_AbsentSubpath(t *testing.T) {
	records, fileErrors, err := LoadRules(t.TempDir(), "rules")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, fileErrors)
}

func TestLoadRules_IgnoresOtherExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/readme.md", "# not a rule")
	writeFile(t, root, "rules/cpu.yml", groupFormatRules)

	records, fileErrors, err := LoadRules(root, "rules")
	require.NoError(t, err)
	assert.Empty(t, fileErrors)
	require.Len(t, records, 1)
	assert.Equal(t, "cpu", records[0].Name)
}

func TestLoadDashboards(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dashboards/overview.json", `{"title": "Overview", "panels": []}`)
	writeFile(t, root, "dashboards/broken.json", `{"title": `)
	writeFile(t, root, "dashboards/notes.txt", "ignored")

	records, fileErrors, err := LoadDashboards(root, "dashboards")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, fileErrors, 1)

	assert.Equal(t, "overview", records[0].Name)
	assert.Contains(t, fileErrors[0].Path, "broken.json")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(records[0].Payload, &doc))
	assert.Equal(t, "Overview", doc["title"])
}

func TestLoadDashboards_EmptyDocumentRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dashboards/empty.json", `{}`)

	records, fileErrors, err := LoadDashboards(root, "dashboards")
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, fileErrors, 1)
}

func TestRecordName(t *testing.T) {
	assert.Equal(t, "cpu", RecordName("cpu.yaml"))
	assert.Equal(t, "nested_up", RecordName(filepath.Join("nested", "up.rule")))
	assert.Equal(t, "a_b_c", RecordName("a/b.c.json"))
}
