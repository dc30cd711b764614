// Package scope implements the Scope phase (spec §2, §3): given a raw
// research request it selects a Strategy — either directly, via an explicit
// strategy_hint, or by LLM-categorizing the topic into a (category,
// time_window, depth) tuple and looking that tuple up in the Strategy
// Registry's secondary index — and records the selection plus the derived
// sub-query task list onto State before the SCOPED transition.
package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// Request is the Scope phase's input, a projection of the inbound
// ResearchRequest (spec §6) onto the fields Scope actually consumes.
type Request struct {
	Topic         string
	StrategyHint  string
	DepthOverride string
}

// StrategyRegistry is the subset of *strategy.Registry Scope needs.
type StrategyRegistry interface {
	Lookup(slug string) (*strategy.Strategy, bool)
	LookupByKey(key strategy.Key) []*strategy.Strategy
}

// Registry is the subset of *toolregistry.Registry the categorization call
// needs.
type Registry interface {
	Lookup(use string) (toolregistry.Adapter, bool)
}

// Selector runs the Scope phase.
type Selector struct {
	strategies StrategyRegistry
	tools      Registry
	tracer     telemetry.Tracer
	settings   settings.Settings
}

// New builds a Selector.
func New(strategies StrategyRegistry, tools Registry, tracer telemetry.Tracer, sett settings.Settings) *Selector {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Selector{strategies: strategies, tools: tools, tracer: tracer, settings: sett}
}

// categorization is the shape the scope LLM call is asked to produce when a
// request carries no strategy_hint.
type categorization struct {
	Category   string   `json:"category"`
	TimeWindow string   `json:"time_window"`
	Depth      string   `json:"depth"`
	Tasks      []string `json:"tasks"`
}

// Run selects a Strategy for req and records it, along with the derived
// category/time_window/depth/tasks, onto st before transitioning to SCOPED.
func (sel *Selector) Run(ctx context.Context, req Request, st *state.State) (*strategy.Strategy, error) {
	ctx, span := sel.tracer.Start(ctx, "scope")
	defer span.End()

	if strings.TrimSpace(req.StrategyHint) != "" {
		strat, ok := sel.strategies.Lookup(req.StrategyHint)
		if !ok {
			return nil, fmt.Errorf("scope: %w", orcherr.New(orcherr.KindConfig, "scope.hint",
				fmt.Sprintf("strategy_hint %q does not match any loaded strategy", req.StrategyHint)))
		}
		depth := strat.Depth
		if req.DepthOverride != "" {
			depth = req.DepthOverride
		}
		st.SetScope(strat.Slug, strat.Category, strat.TimeWindow, depth, []string{req.Topic})
		return strat, st.Transition(state.PhaseScoped)
	}

	cat, err := sel.categorize(ctx, req.Topic)
	if err != nil {
		return nil, fmt.Errorf("scope: categorize: %w", err)
	}
	depth := cat.Depth
	if req.DepthOverride != "" {
		depth = req.DepthOverride
	}

	candidates := sel.strategies.LookupByKey(strategy.Key{Category: cat.Category, TimeWindow: cat.TimeWindow, Depth: depth})
	if len(candidates) == 0 {
		return nil, fmt.Errorf("scope: %w", orcherr.New(orcherr.KindConfig, "scope.match",
			fmt.Sprintf("no strategy registered for category=%q time_window=%q depth=%q", cat.Category, cat.TimeWindow, depth)))
	}
	strat := candidates[0]

	tasks := cat.Tasks
	if len(tasks) == 0 {
		tasks = []string{req.Topic}
	}
	st.SetScope(strat.Slug, cat.Category, cat.TimeWindow, depth, tasks)
	return strat, st.Transition(state.PhaseScoped)
}

// categorize runs one llm_completion call that classifies the raw topic
// into a Strategy-selecting tuple plus an ordered sub-query list, mirroring
// fill's single-batched-call approach (internal/fill) rather than issuing
// one categorization call per field.
func (sel *Selector) categorize(ctx context.Context, topic string) (categorization, error) {
	adapter, ok := sel.tools.Lookup(string(toolregistry.CapabilityLLMCompletion))
	if !ok {
		return categorization{}, orcherr.New(orcherr.KindConfig, "scope.categorize", "no llm_completion adapter registered")
	}

	prompt := fmt.Sprintf(
		"Classify this research request and break it into sub-query tasks.\n\n"+
			"Request: %s\n\n"+
			"Respond with a single JSON object: "+
			"{\"category\": one of [news, company, general], "+
			"\"time_window\": one of [day, week, month, custom], "+
			"\"depth\": one of [brief, deep, comprehensive], "+
			"\"tasks\": [ordered list of sub-query strings]}.", topic)

	modelCfg := sel.settings.ModelFor("scope")
	results, _, err := adapter.Call(ctx, map[string]any{
		"prompt":      prompt,
		"system":      "You categorize research requests as strict JSON. Respond with a JSON object only.",
		"model":       modelCfg.Model,
		"max_tokens":  orDefault(modelCfg.MaxTokens, 512),
		"temperature": 0.0,
	})
	if err != nil {
		// adapter.Call already returns an orcherr-classified error; pass it
		// through rather than flattening its Kind.
		return categorization{}, err
	}
	if len(results) == 0 {
		return categorization{}, orcherr.New(orcherr.KindInternal, "scope.categorize", "adapter returned no result")
	}

	var cat categorization
	if err := json.Unmarshal([]byte(extractJSONObject(results[0].Snippet)), &cat); err != nil {
		return categorization{}, orcherr.Wrap(orcherr.KindPermanent, "scope.categorize.parse", err)
	}
	if cat.Category == "" || cat.TimeWindow == "" || cat.Depth == "" {
		return categorization{}, orcherr.New(orcherr.KindPermanent, "scope.categorize.parse",
			"categorization response missing category, time_window, or depth")
	}
	return cat, nil
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	i := strings.Index(text, "{")
	j := strings.LastIndex(text, "}")
	if i < 0 || j < 0 || j < i {
		return "{}"
	}
	return text[i : j+1]
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
