package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// validateSchema unifies the decoded parameter document with the
// embedded #Pipeline schema. Returns a *ConfigError naming the first
// offending key on mismatch.
func validateSchema(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		// The schema ships inside the binary; failing to compile it is
		// a build defect, not a user configuration problem.
		panic(fmt.Sprintf("embedded pipeline schema invalid: %v", err))
	}

	def := schema.LookupPath(cue.ParsePath("#Pipeline"))
	if err := def.Err(); err != nil {
		panic(fmt.Sprintf("embedded pipeline schema missing #Pipeline: %v", err))
	}

	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return &ConfigError{Message: fmt.Sprintf("encode configuration: %v", err), Err: err}
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError converts a CUE validation error into a ConfigError,
// extracting the offending key from the first error's path.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Message: err.Error(), Err: err}
	}

	first := errs[0]
	key := ""
	if path := first.Path(); len(path) > 0 {
		key = path[len(path)-1]
	}
	return &ConfigError{
		Key:     key,
		Message: first.Error(),
		Err:     err,
	}
}
