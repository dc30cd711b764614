// Package wiring builds the shared Orchestrator/Batch Runner collaborator
// graph from environment configuration, the same construct-collaborators-
// then-call-into-the-core assembly cmd/demo's main.go does, factored out
// of main() so cmd/research and cmd/researchd share it instead of
// duplicating provider/env wiring across two main packages.
package wiring

import (
	"context"
	"fmt"
	"os"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"

	"github.com/mberto10/researchctl/internal/batch"
	"github.com/mberto10/researchctl/internal/orchestrator"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/subscription"
	"github.com/mberto10/researchctl/internal/subscription/memory"
	subscriptionmongo "github.com/mberto10/researchctl/internal/subscription/mongo"
	"github.com/mberto10/researchctl/internal/telemetry"
	"github.com/mberto10/researchctl/internal/toolregistry"
	"github.com/mberto10/researchctl/internal/toolregistry/llm"
	"github.com/mberto10/researchctl/internal/toolregistry/llm/anthropicadapter"
	"github.com/mberto10/researchctl/internal/toolregistry/llm/bedrockadapter"
	"github.com/mberto10/researchctl/internal/toolregistry/llm/openaiadapter"
	"github.com/mberto10/researchctl/internal/toolregistry/websearch"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Config names the environment-sourced knobs both cmd/ entry points need.
// Every field maps to an env var so neither binary hand-rolls flag-vs-env
// precedence twice.
type Config struct {
	StrategiesDir string // RESEARCHCTL_STRATEGIES_DIR
	SettingsPath  string // RESEARCHCTL_SETTINGS_PATH, empty uses settings.Default()
	UseOTel       bool   // RESEARCHCTL_OTEL=1 switches telemetry from noop to Clue/OTel
	MongoURI      string // RESEARCHCTL_MONGO_URI, empty keeps subscriptions in-memory
}

// ConfigFromEnv reads Config from the conventional env vars, defaulting
// StrategiesDir to "./strategies" when unset.
func ConfigFromEnv() Config {
	dir := os.Getenv("RESEARCHCTL_STRATEGIES_DIR")
	if dir == "" {
		dir = "./strategies"
	}
	useOTel, _ := strconv.ParseBool(os.Getenv("RESEARCHCTL_OTEL"))
	return Config{
		StrategiesDir: dir,
		SettingsPath:  os.Getenv("RESEARCHCTL_SETTINGS_PATH"),
		UseOTel:       useOTel,
		MongoURI:      os.Getenv("RESEARCHCTL_MONGO_URI"),
	}
}

// App bundles the built Orchestrator, Batch Runner, and the subscription
// store/sink the batch daemon lists and delivers through. Subscriptions is
// the subscription.SubscriptionStore interface so callers don't care
// whether Build chose the in-memory or MongoDB-backed implementation;
// Deliveries stays concrete since cmd/researchd's status output reads its
// in-order Deliveries() slice directly.
type App struct {
	Orchestrator  *orchestrator.Orchestrator
	Batch         *batch.Runner
	Subscriptions subscription.SubscriptionStore
	Deliveries    *memory.Sink
}

// Build wires every collaborator from cfg and the process environment:
// telemetry, the LLM provider adapter(s) found via API key env vars, the
// web-search adapter, the Strategy Registry loaded from cfg.StrategiesDir,
// and the Orchestrator/Batch Runner built on top of them.
func Build(cfg Config) (*App, error) {
	tracer, logger, metrics := buildTelemetry(cfg)

	sett := settings.Default()
	if cfg.SettingsPath != "" {
		loaded, err := settings.Load(cfg.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("wiring: load settings: %w", err)
		}
		sett = loaded
	}

	tools := toolregistry.NewRegistry(logger)
	if err := registerLLMAdapters(tools); err != nil {
		return nil, err
	}
	registerWebSearchAdapter(tools)

	strategies, err := strategy.LoadDir(cfg.StrategiesDir, tools.Known)
	if err != nil {
		return nil, fmt.Errorf("wiring: load strategies: %w", err)
	}

	orch := orchestrator.New(strategies, tools, sett, tracer, logger, metrics, nil)

	subs, err := buildSubscriptionStore(cfg)
	if err != nil {
		return nil, err
	}
	sink := memory.NewSink()
	runner := batch.New(orch, subs, sink, sett.Limits.ForEachConcurrencyOrDefault(), tracer, logger, nil)

	return &App{Orchestrator: orch, Batch: runner, Subscriptions: subs, Deliveries: sink}, nil
}

// buildSubscriptionStore connects to MongoDB when cfg.MongoURI is set,
// falling back to the in-memory reference store otherwise — the same
// store/memory-vs-store/mongo split registry/store.Store offers the
// teacher's own service.
func buildSubscriptionStore(cfg Config) (subscription.SubscriptionStore, error) {
	if cfg.MongoURI == "" {
		return memory.New(), nil
	}
	client, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("wiring: connect mongo: %w", err)
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		return nil, fmt.Errorf("wiring: ping mongo: %w", err)
	}
	coll := client.Database("researchctl").Collection("subscriptions")
	return subscriptionmongo.New(coll), nil
}

// buildTelemetry selects the Clue/OTel-backed implementations when
// cfg.UseOTel is set, the noop implementations otherwise — the same
// production-vs-test split telemetry.New{Clue,Noop}* already expose.
func buildTelemetry(cfg Config) (telemetry.Tracer, telemetry.Logger, telemetry.Metrics) {
	if !cfg.UseOTel {
		return telemetry.NewNoopTracer(), telemetry.NewNoopLogger(), telemetry.NewNoopMetrics()
	}
	return telemetry.NewClueTracer(), telemetry.NewClueLogger(), telemetry.NewClueMetrics()
}

// registerLLMAdapters registers one llm_completion adapter per provider API
// key present in the environment, wrapped in an AdaptiveRateLimiter (spec
// §4.1's capability-fallback mechanic: whichever provider is configured
// satisfies CapabilityLLMCompletion for every strategy's llm_completion
// steps). Returns an error only if no provider is configured at all.
func registerLLMAdapters(tools *toolregistry.Registry) error {
	registered := false

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5")
		c, err := anthropicadapter.NewFromAPIKey(key, model)
		if err != nil {
			return fmt.Errorf("wiring: anthropic adapter: %w", err)
		}
		limiter := llm.NewAdaptiveRateLimiter(60_000, 200_000)
		tools.Register(toolregistry.NewLLMAdapter("llm.anthropic", limiter.Wrap(c), 0))
		registered = true
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := envOr("OPENAI_DEFAULT_MODEL", "gpt-4o")
		c, err := openaiadapter.NewFromAPIKey(key, model)
		if err != nil {
			return fmt.Errorf("wiring: openai adapter: %w", err)
		}
		limiter := llm.NewAdaptiveRateLimiter(60_000, 200_000)
		tools.Register(toolregistry.NewLLMAdapter("llm.openai", limiter.Wrap(c), 0))
		registered = true
	}
	if region := os.Getenv("AWS_REGION"); region != "" && os.Getenv("RESEARCHCTL_USE_BEDROCK") != "" {
		model := envOr("BEDROCK_DEFAULT_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0")
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			return fmt.Errorf("wiring: load aws config: %w", err)
		}
		c, err := bedrockadapter.New(bedrockadapter.Options{
			Runtime:      bedrockruntime.NewFromConfig(awsCfg),
			DefaultModel: model,
		})
		if err != nil {
			return fmt.Errorf("wiring: bedrock adapter: %w", err)
		}
		limiter := llm.NewAdaptiveRateLimiter(60_000, 200_000)
		tools.Register(toolregistry.NewLLMAdapter("llm.bedrock", limiter.Wrap(c), 0))
		registered = true
	}

	if !registered {
		return fmt.Errorf("wiring: no LLM provider configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, or AWS_REGION+RESEARCHCTL_USE_BEDROCK)")
	}
	return nil
}

// registerWebSearchAdapter registers a websearch adapter when the
// conventional base-url/api-key env vars are set; web_search steps simply
// have no adapter to resolve against if they're absent (a strategy load
// error the loader's AdapterKnown callback already surfaces).
func registerWebSearchAdapter(tools *toolregistry.Registry) {
	baseURL := os.Getenv("RESEARCHCTL_WEBSEARCH_BASE_URL")
	apiKey := os.Getenv("RESEARCHCTL_WEBSEARCH_API_KEY")
	if baseURL == "" || apiKey == "" {
		return
	}
	c, err := websearch.New(websearch.Options{BaseURL: baseURL, APIKey: apiKey})
	if err != nil {
		return
	}
	tools.Register(c)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewIdentity builds a state.Identity for an ad-hoc CLI run: userID comes
// from the operator (or "cli" if unset), taskID is a fresh uuid so every
// invocation's trace spans and ErrorRecords correlate to one run (spec
// §3's "Identity is the opaque per-request identity tag").
func NewIdentity(userID string) state.Identity {
	if userID == "" {
		userID = "cli"
	}
	return state.Identity{UserID: userID, TaskID: uuid.NewString()}
}

// NewSubscriptionID mints a fresh subscription identifier the same way
// NewIdentity mints a task id.
func NewSubscriptionID() string {
	return uuid.NewString()
}
