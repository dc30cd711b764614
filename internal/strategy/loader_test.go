package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeStrategyFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600))
}

func allKnown(string) bool { return true }

func TestLoadDirParsesAndIndexesStrategies(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "news.yaml", `
strategies:
  - slug: general_news_standard
    category: general_news
    time_window: recent
    depth: standard
    tool_chain:
      - name: search
        use: web_search
        params:
          query: "{{topic}}"
        save_as: results
`)

	reg, err := LoadDir(dir, allKnown)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	s, ok := reg.Lookup("general_news_standard")
	require.True(t, ok)
	require.Equal(t, "general_news", s.Category)

	byKey := reg.LookupByKey(Key{Category: "general_news", TimeWindow: "recent", Depth: "standard"})
	require.Len(t, byKey, 1)
	require.Equal(t, "general_news_standard", byKey[0].Slug)
}

func TestLoadDirRejectsDuplicateSlug(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "a.yaml", `
strategies:
  - slug: dup
    category: c
    time_window: t
    depth: d
    tool_chain:
      - name: s
        use: web_search
`)
	writeStrategyFile(t, dir, "b.yaml", `
strategies:
  - slug: dup
    category: c2
    time_window: t2
    depth: d2
    tool_chain:
      - name: s
        use: web_search
`)

	_, err := LoadDir(dir, allKnown)
	require.Error(t, err)
}

func TestLoadDirRejectsUnknownAdapter(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "a.yaml", `
strategies:
  - slug: only
    category: c
    time_window: t
    depth: d
    tool_chain:
      - name: s
        use: not_a_real_adapter
`)

	_, err := LoadDir(dir, func(string) bool { return false })
	require.Error(t, err)
}

func TestLoadDirRejectsReferenceToUndeclaredVariable(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "a.yaml", `
strategies:
  - slug: only
    category: c
    time_window: t
    depth: d
    tool_chain:
      - name: s
        use: web_search
        params:
          query: "{{undeclared_var}}"
`)

	_, err := LoadDir(dir, allKnown)
	require.Error(t, err)
}

func TestLoadDirAllowsWellKnownScopeVarsWithoutDeclaration(t *testing.T) {
	dir := t.TempDir()
	writeStrategyFile(t, dir, "a.yaml", `
strategies:
  - slug: only
    category: c
    time_window: t
    depth: d
    tool_chain:
      - name: s
        use: web_search
        params:
          query: "{{topic}} {{category}}"
`)

	reg, err := LoadDir(dir, allKnown)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())
}
