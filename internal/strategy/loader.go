package strategy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AdapterKnown reports whether use (an adapter key or capability tag) can
// be resolved against the Tool Adapter Registry, either exactly or via a
// capability fallback. The Strategy Loader takes this as a callback rather
// than importing toolregistry directly, keeping the dependency direction
// the same as the teacher's codegen->registry validation split.
type AdapterKnown func(useOrCapability string) bool

// strategiesFile is the YAML root; one file may declare multiple
// strategies, mirroring runner.go's scenariosFile wrapper.
type strategiesFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// LoadDir walks dir for *.yaml/*.yml files, parses each into Strategy
// values, validates every structural invariant from spec §4.2, and
// returns an immutable Registry. Loading fails hard on the first
// structural error (spec §4.2).
func LoadDir(dir string, knownAdapter AdapterKnown) (*Registry, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("strategy: walk %s: %w", dir, err)
	}
	sort.Strings(files)

	var all []*Strategy
	for _, f := range files {
		parsed, err := parseFile(f)
		if err != nil {
			return nil, err
		}
		all = append(all, parsed...)
	}
	if err := validateAll(all, knownAdapter); err != nil {
		return nil, err
	}
	return newRegistry(all), nil
}

func parseFile(path string) ([]*Strategy, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- strategy files are trusted operator-provided config
	if err != nil {
		return nil, fmt.Errorf("strategy: read %s: %w", path, err)
	}
	var f strategiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("strategy: parse %s: %w", path, err)
	}
	out := make([]*Strategy, len(f.Strategies))
	for i := range f.Strategies {
		s := f.Strategies[i]
		out[i] = &s
	}
	return out, nil
}

// validateAll checks the structural invariants from spec §4.2:
//   - unique slugs
//   - every step's `use` resolves to a known adapter key or capability
//   - every referenced variable is declared
//   - every `save_as` name is unique within a strategy
//   - `for_each` path is syntactically a dotted reference
func validateAll(all []*Strategy, knownAdapter AdapterKnown) error {
	seenSlug := make(map[string]bool, len(all))
	for _, s := range all {
		if s.Slug == "" {
			return &Error{Msg: "missing slug"}
		}
		if seenSlug[s.Slug] {
			return &Error{Slug: s.Slug, Msg: "duplicate slug"}
		}
		seenSlug[s.Slug] = true

		declared := make(map[string]bool, len(s.Variables))
		for _, v := range s.Variables {
			if v.Name == "" {
				return &Error{Slug: s.Slug, Msg: "variable with empty name"}
			}
			declared[v.Name] = true
		}

		savedAs := make(map[string]bool, len(s.ToolChain))
		for _, step := range s.ToolChain {
			if step.Use == "" {
				return &Error{Slug: s.Slug, Msg: fmt.Sprintf("step %q: missing use", step.Name)}
			}
			if knownAdapter != nil && !knownAdapter(step.Use) {
				return &Error{Slug: s.Slug, Msg: fmt.Sprintf("step %q: unknown adapter/capability %q", step.Name, step.Use)}
			}
			if step.ForEach != "" && !isDottedPath(step.ForEach) {
				return &Error{Slug: s.Slug, Msg: fmt.Sprintf("step %q: for_each %q is not a dotted path", step.Name, step.ForEach)}
			}
			if step.SaveAs != "" {
				if savedAs[step.SaveAs] {
					return &Error{Slug: s.Slug, Msg: fmt.Sprintf("duplicate save_as %q", step.SaveAs)}
				}
				savedAs[step.SaveAs] = true
			}
			for _, ref := range referencedVars(step) {
				if !declared[ref] && !isWellKnownScopeVar(ref) && !(step.ForEach != "" && ref == step.LoopVar()) {
					return &Error{Slug: s.Slug, Msg: fmt.Sprintf("step %q: references undeclared variable %q", step.Name, ref)}
				}
			}
		}
	}
	return nil
}

// isWellKnownScopeVar allows templates to reference the always-present
// scope fields (topic, category, time_window, depth, item, runtime_plan) and
// the date_range Fill expands from time_window (spec §4.3 step 4) without
// declaring them as strategy Variables.
func isWellKnownScopeVar(name string) bool {
	switch strings.Split(name, ".")[0] {
	case "topic", "category", "time_window", "depth", "item", "runtime_plan", "vars", "date_range":
		return true
	default:
		return false
	}
}

func isDottedPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// referencedVars extracts the top-level identifier of every {{...}}
// reference in a step's params and when expression (dotted paths count by
// their first segment, matching how exprval.Resolve looks names up).
func referencedVars(step Step) []string {
	var refs []string
	collectRefs(step.Params, &refs)
	collectRefs(step.When, &refs)
	return refs
}

func collectRefs(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		for _, ref := range extractRefs(t) {
			*out = append(*out, ref)
		}
	case map[string]any:
		for _, e := range t {
			collectRefs(e, out)
		}
	case []any:
		for _, e := range t {
			collectRefs(e, out)
		}
	}
}

func extractRefs(s string) []string {
	var out []string
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			break
		}
		inner := strings.TrimSpace(s[start+2 : start+end])
		out = append(out, strings.Split(inner, ".")[0])
		s = s[start+end+2:]
	}
	return out
}
