package exprval

import (
	"regexp"
	"strconv"
	"strings"
)

var refPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// ExpandString substitutes every `{{name}}` / `{{a.b.c}}` reference in s
// against scope, returning the fully resolved string. An unresolved
// reference (no binding, no default provided by the caller) yields a
// *RefError so the Step Executor can classify it as a KindConfig failure
// per spec §4.4.
func ExpandString(s string, scope *Scope) (string, error) {
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		sub := refPattern.FindStringSubmatch(m)
		path := sub[1]
		v, err := Resolve(scope, path)
		if err != nil {
			firstErr = err
			return m
		}
		return v.AsString()
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ExpandParams walks an arbitrary params tree (map[string]any / []any /
// scalars, as decoded from a Strategy's YAML) and expands every string leaf
// with ExpandString, returning a structurally-identical tree with all
// templates resolved. Non-string scalars pass through unchanged.
func ExpandParams(params map[string]any, scope *Scope) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		ev, err := expandAny(v, scope)
		if err != nil {
			return nil, err
		}
		out[k] = ev
	}
	return out, nil
}

func expandAny(v any, scope *Scope) (any, error) {
	switch t := v.(type) {
	case string:
		return ExpandString(t, scope)
	case map[string]any:
		return ExpandParams(t, scope)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ev, err := expandAny(e, scope)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

// EvalWhen evaluates a Step's `when` expression against scope. The grammar
// is deliberately restricted to what spec §3/§4.4 requires: boolean
// combinations (&&, ||) of either a bare `{{ref}}` truthiness check or a
// binary `{{ref}} == 'literal'` / `{{ref}} != 'literal'` comparison, where
// the literal may itself be a bare identifier/number or single/double
// quoted string. Returns (result, error); error classifies as KindConfig.
func EvalWhen(expr string, scope *Scope) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	if idx := splitTopLevel(expr, "||"); idx >= 0 {
		left, err := EvalWhen(expr[:idx], scope)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return EvalWhen(expr[idx+2:], scope)
	}
	if idx := splitTopLevel(expr, "&&"); idx >= 0 {
		left, err := EvalWhen(expr[:idx], scope)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return EvalWhen(expr[idx+2:], scope)
	}
	return evalComparison(expr, scope)
}

// splitTopLevel returns the index of the first occurrence of op, ignoring
// nothing fancier than plain substring search — the grammar has no
// parenthesization, so "top level" is simply "anywhere".
func splitTopLevel(expr, op string) int {
	return strings.Index(expr, op)
}

func evalComparison(expr string, scope *Scope) (bool, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range []string{"==", "!="} {
		if idx := strings.Index(expr, op); idx >= 0 {
			leftRaw := strings.TrimSpace(expr[:idx])
			rightRaw := strings.TrimSpace(expr[idx+len(op):])
			left, err := evalOperand(leftRaw, scope)
			if err != nil {
				return false, err
			}
			right, err := evalOperand(rightRaw, scope)
			if err != nil {
				return false, err
			}
			eq := Equal(left, right)
			if op == "!=" {
				return !eq, nil
			}
			return eq, nil
		}
	}
	// No comparison operator: treat the whole expression as a truthy ref.
	v, err := evalOperand(expr, scope)
	if err != nil {
		return false, err
	}
	return v.AsBool(), nil
}

func evalOperand(raw string, scope *Scope) (Value, error) {
	raw = strings.TrimSpace(raw)
	if isQuoted(raw) {
		return OfString(raw[1 : len(raw)-1]), nil
	}
	if m := refPattern.FindStringSubmatch(raw); m != nil && m[0] == raw {
		return Resolve(scope, m[1])
	}
	if refPattern.MatchString(raw) && strings.HasPrefix(raw, "{{") {
		s, err := ExpandString(raw, scope)
		if err != nil {
			return Null, err
		}
		return OfString(s), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return OfInt(i), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return OfFloat(f), nil
	}
	if raw == "true" || raw == "false" {
		return OfBool(raw == "true"), nil
	}
	// Bare identifier: resolve directly as a dotted path into the scope.
	return Resolve(scope, raw)
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"')
}
