// Package paramschema validates a Step's expanded params map against an
// adapter-declared JSON Schema, the same shape as the teacher's
// validatePayloadJSONAgainstSchema in registry/service.go, generalized from a
// raw-bytes tool-call payload to the map[string]any a Step Executor already
// has in hand after template expansion.
package paramschema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mberto10/researchctl/internal/orcherr"
)

// Validate compiles schemaBytes (a JSON Schema document) and validates
// params against it. A nil or empty schemaBytes is treated as "no schema
// declared" and always passes, matching the teacher's
// "len(schemaBytes) == 0 -> no validation" short-circuit. Failures are
// reported as orcherr.KindConfig: a params map that doesn't satisfy the
// adapter's declared schema is an authoring mistake in the strategy file,
// not a transient condition worth retrying.
func Validate(schemaBytes []byte, params map[string]any) error {
	if len(schemaBytes) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "paramschema.schema", fmt.Errorf("unmarshal schema: %w", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("params.json", schemaDoc); err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "paramschema.compile", fmt.Errorf("add schema resource: %w", err))
	}
	schema, err := c.Compile("params.json")
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "paramschema.compile", fmt.Errorf("compile schema: %w", err))
	}

	// jsonschema validates against any, but a map[string]any with non-JSON
	// types (e.g. the exprval Value outputs already coerced to native Go
	// values) round-trips safely through json.Marshal/Unmarshal first.
	raw, err := json.Marshal(params)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "paramschema.marshal", err)
	}
	var paramsDoc any
	if err := json.Unmarshal(raw, &paramsDoc); err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "paramschema.unmarshal", err)
	}

	if err := schema.Validate(paramsDoc); err != nil {
		return orcherr.Wrap(orcherr.KindConfig, "paramschema.validate", err)
	}
	return nil
}
