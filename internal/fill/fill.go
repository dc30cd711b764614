// Package fill implements the Fill phase (spec §3, §4.3): it resolves
// every Variable a Strategy declares, batching every llm_fill-resolved
// variable into a single LLM call rather than issuing one completion per
// variable, so a five-variable strategy costs one generation, not five.
package fill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mberto10/researchctl/internal/clock"
	"github.com/mberto10/researchctl/internal/exprval"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// Registry is the subset of *toolregistry.Registry the Fill phase needs.
type Registry interface {
	Lookup(use string) (toolregistry.Adapter, bool)
}

// Resolver runs the Fill phase for one Strategy.
type Resolver struct {
	registry Registry
	tracer   telemetry.Tracer
	settings settings.Settings
	clock    clock.Clock
}

// New builds a Resolver. clk supplies the execution clock step 4 of spec
// §4.3 expands time-window variables against; tests pass a clock.Fixed for
// byte-equal date ranges, nil defaults to clock.Real.
func New(registry Registry, tracer telemetry.Tracer, sett settings.Settings, clk clock.Clock) *Resolver {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Resolver{registry: registry, tracer: tracer, settings: sett, clock: clk}
}

// Run resolves every Variable in s against st, in three passes matching
// spec §4.3's resolver precedence: from_request first (already present on
// State), from_scope second (already present after the Scope phase), then
// one batched llm_fill call for everything still missing its default.
func (r *Resolver) Run(ctx context.Context, s *strategy.Strategy, st *state.State) error {
	ctx, span := r.tracer.Start(ctx, "fill")
	defer span.End()

	var needLLM []strategy.Variable
	for _, v := range s.Variables {
		switch v.Resolver {
		case strategy.ResolverFromRequest, strategy.ResolverFromScope:
			if _, ok := st.Var(v.Name); !ok && v.Default != nil {
				st.SetVar(v.Name, exprval.FromNative(v.Default))
			}
		case strategy.ResolverLLMFill:
			if _, ok := st.Var(v.Name); ok {
				continue
			}
			needLLM = append(needLLM, v)
		default:
			if v.Default != nil {
				st.SetVar(v.Name, exprval.FromNative(v.Default))
			}
		}
	}

	if len(needLLM) == 0 {
		r.expandTimeWindow(st)
		st.LockRuntimePlan(s.ToolChain)
		return st.Transition(state.PhaseFilled)
	}

	adapter, ok := r.registry.Lookup(string(toolregistry.CapabilityLLMCompletion))
	if !ok {
		return fmt.Errorf("fill: %w", orcherr.New(orcherr.KindConfig, "fill.lookup", "no llm_completion adapter registered"))
	}

	prompt := buildPrompt(st.UserRequest, needLLM)
	modelCfg := r.settings.ModelFor("fill")
	params := map[string]any{
		"prompt":      prompt,
		"system":      "You extract structured research parameters as strict JSON. Respond with a JSON object only.",
		"model":       modelCfg.Model,
		"max_tokens":  orDefault(modelCfg.MaxTokens, 1024),
		"temperature": 0.0,
	}
	results, _, err := adapter.Call(ctx, params)
	if err != nil {
		// adapter.Call already returns an orcherr-classified error (e.g.
		// KindRateLimited for a 429); pass its Kind through rather than
		// flattening it to one fixed kind here.
		return fmt.Errorf("fill: llm_fill call: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("fill: %w", orcherr.New(orcherr.KindInternal, "fill.llm_fill", "adapter returned no result"))
	}

	values, err := parseJSONObject(results[0].Snippet)
	if err != nil {
		return fmt.Errorf("fill: parse llm_fill response: %w", orcherr.Wrap(orcherr.KindPermanent, "fill.parse", err))
	}

	for _, v := range needLLM {
		if raw, ok := values[v.Name]; ok {
			st.SetVar(v.Name, exprval.FromNative(raw))
			continue
		}
		if v.Default != nil {
			st.SetVar(v.Name, exprval.FromNative(v.Default))
			continue
		}
		if v.Required {
			return fmt.Errorf("fill: %w", orcherr.New(orcherr.KindConfig, "fill.required", fmt.Sprintf("variable %q was not resolved and has no default", v.Name)))
		}
	}

	r.expandTimeWindow(st)
	st.LockRuntimePlan(s.ToolChain)
	return st.Transition(state.PhaseFilled)
}

const dateLayout = "2006-01-02"

// expandTimeWindow is resolution step 4 of spec §4.3: it turns st.TimeWindow
// into a concrete [start, end] date range against r.clock and exposes it as
// the "date_range" variable so a step's params can reference
// {{date_range.start}}/{{date_range.end}}.
func (r *Resolver) expandTimeWindow(st *state.State) {
	start, end := dateRangeFor(st.TimeWindow, r.clock.Now())
	st.SetVar("date_range", exprval.FromNative(map[string]any{
		"start": start.Format(dateLayout),
		"end":   end.Format(dateLayout),
	}))
}

// dateRangeFor maps a Strategy's time_window (day|week|month|custom, spec
// §3) onto a lookback window ending at now. "custom" carries no fixed
// lookback of its own — a strategy that declares it is expected to supply
// its own from_request/llm_fill bounds — so it expands to a single-day
// range anchored on now rather than guessing a window width.
func dateRangeFor(window string, now time.Time) (time.Time, time.Time) {
	end := now
	switch window {
	case "day":
		return end.AddDate(0, 0, -1), end
	case "week":
		return end.AddDate(0, 0, -7), end
	case "month":
		start := end.AddDate(0, -1, 0)
		if start.Day() != end.Day() {
			// The previous month is shorter: clamp to its last day
			// instead of overflowing into the current month.
			start = start.AddDate(0, 0, -start.Day())
		}
		return start, end
	default:
		return end, end
	}
}

func buildPrompt(userRequest string, vars []strategy.Variable) string {
	var b strings.Builder
	b.WriteString("Request: ")
	b.WriteString(userRequest)
	b.WriteString("\n\nExtract the following fields as a single JSON object, using only the listed keys:\n")
	for _, v := range vars {
		b.WriteString(fmt.Sprintf("- %s (%s): %s\n", v.Name, v.Type, v.Description))
	}
	return b.String()
}

func parseJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	if j := strings.LastIndex(text, "}"); j >= 0 && j < len(text)-1 {
		text = text[:j+1]
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
