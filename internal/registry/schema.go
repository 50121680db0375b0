package registry

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// schemaSource describes a valid registry file.
const schemaSource = `
#Entry: {
	title:      string
	source:     string & !=""
	onPath:     string & !=""
	entrypoint: =~"^[A-Za-z_][A-Za-z0-9_']*$"
	flags?:     [...string] | null
	...
}

registry: [...#Entry]
`

// SchemaError is a registry validation failure with its file position.
type SchemaError struct {
	Message string
	Line    int
	Column  int
}

func (e *SchemaError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// validate checks raw registry bytes against the schema.
func validate(name string, data []byte) error {
	expr, err := cuejson.Extract(name, data)
	if err != nil {
		return formatCUEError(err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("registry.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling registry schema: %w", err)
	}

	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("registry")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	se := &SchemaError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		se.Line = positions[0].Line()
		se.Column = positions[0].Column()
	}
	return se
}
