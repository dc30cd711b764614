// Package toolregistry implements the uniform Tool Adapter contract and the
// registry that resolves a Step's `use` key to a concrete Adapter, falling
// back to any adapter sharing the required capability (spec §4.1). The
// registry mechanics are modeled on the teacher's dispatch shape in
// runtime/toolregistry/executor/executor.go (Client/logger/tracer held on a
// struct, functional Option constructors) generalized from a Pulse-routed
// single client to a capability-keyed map of in-process adapters, since
// spec §6 explicitly keeps wire/transport details of each provider outside
// the core's scope.
package toolregistry

import (
	"context"

	"github.com/mberto10/researchctl/internal/evidence"
)

// Capability is a tag the registry uses to find a substitute adapter when
// the exact key a step names is absent (spec §4.1).
type Capability string

// The three capabilities SPEC_FULL.md's adapters register under.
const (
	CapabilityWebSearch     Capability = "web_search"
	CapabilityLLMCompletion Capability = "llm_completion"
	CapabilitySemanticSearch Capability = "semantic_search"
)

// Usage is the optional cost/token record an adapter call reports.
type Usage = evidence.Usage

// Adapter is the uniform invocation surface every search/LLM/HTTP tool
// implements (spec §4.1).
type Adapter interface {
	// Call turns an already-expanded params map into Evidence. params has
	// already had its {{...}} templates resolved by the Step Executor.
	Call(ctx context.Context, params map[string]any) ([]evidence.Evidence, *Usage, error)

	// Capabilities returns the tags this adapter satisfies.
	Capabilities() []Capability

	// CostHint returns an optional soft per-call cost bound the Research
	// Phase Controller budgets against. Zero means "unknown".
	CostHint() float64

	// Key identifies this adapter for exact `use` matches and for
	// diagnostics.
	Key() string

	// ParamsSchema returns a JSON Schema document describing this adapter's
	// params shape, or nil if it declares none. The Step Executor validates
	// a step's expanded params against it before Call (spec §4.1), the same
	// payload-schema discipline the teacher's registry applies to tool
	// calls (see internal/toolregistry/paramschema).
	ParamsSchema() []byte
}
