package rulesdsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/rules"
)

const yamlPack = `
rules:
  - id: ACME-RAW-COLLECTION
    name: Raw collection handle
    category: Exposure
    severity: MEDIUM
    pattern: '\bgetRawCollection\s*\('
    description: Bypasses the repository layer.
    remediation: Use the repository.
    reference_url: https://example.com/acme/raw
`

const tomlPack = `
[[rules]]
id = "ACME-UNSAFE-SORT"
name = "Sort key from request"
severity = "low"
pattern = '\.sort\(\s*req\.'
description = "Sorting on arbitrary fields can bypass indexes."
remediation = "Whitelist sort keys."
reference_url = "https://example.com/acme/sort"
`

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_YAML(t *testing.T) {
	defs, err := Load(write(t, "pack.yaml", yamlPack))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "ACME-RAW-COLLECTION", defs[0].ID)
	assert.Equal(t, rules.SeverityMedium, defs[0].Severity)
	assert.Equal(t, rules.CategoryExposure, defs[0].Category)
}

func TestLoadPacks(t *testing.T) {
	base := rules.Builtin()
	cat, err := LoadPacks(base, []string{write(t, "a.yml", yamlPack), write(t, "b.toml", tomlPack)})
	require.NoError(t, err)
	assert.Equal(t, base.Len()+2, cat.Len())

	r, ok := cat.Get("ACME-UNSAFE-SORT")
	require.True(t, ok)
	assert.True(t, r.Match("cursor.sort(req.query.by)"))
	assert.Equal(t, base.Len()+1, cat.Position("ACME-UNSAFE-SORT"))
}

func TestLoadPacks_Invalid(t *testing.T) {
	bad := write(t, "bad.yaml", `
rules:
  - id: MONGO-WHERE-INJECTION
    name: dup
    severity: urgent
    pattern: "("
    reference_url: not a url
`)
	_, err := LoadPacks(rules.Builtin(), []string{bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, rules.ErrInvalidCatalog)

	_, err = Load(write(t, "broken.yaml", "rules: [\n"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExport_RoundTrip(t *testing.T) {
	all := rules.Builtin().All()
	for _, format := range []string{"yaml", "toml"} {
		b, err := Export(all, format)
		require.NoError(t, err, format)

		defs, err := Parse(b, format)
		require.NoError(t, err, format)
		cat, err := rules.NewCatalog(defs)
		require.NoError(t, err, format)
		require.Equal(t, len(all), cat.Len(), format)
		for i, r := range cat.All() {
			assert.Equal(t, all[i].ID, r.ID)
			assert.Equal(t, all[i].Pattern, r.Pattern)
			assert.Equal(t, all[i].Severity, r.Severity)
		}
	}
}
