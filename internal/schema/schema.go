// Package schema checks document payloads against a CUE schema.
//
// A schema file either declares a #Document definition, which is closed
// and rejects unknown fields, or constrains fields at the top level, which
// leaves the payload open:
//
//	#Document: {
//		title:     string & !=""
//		priority?: int & >=0 & <=5
//	}
package schema

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// DefinitionName is the optional closed definition looked up in a schema.
const DefinitionName = "#Document"

// Schema validates payloads. Safe for concurrent use.
type Schema struct {
	mu     sync.Mutex
	ctx    *cue.Context
	value  cue.Value
	source string
}

// ValidationError describes the first violation found in a payload.
type ValidationError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "document"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), field, e.Message)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

// Load reads and compiles the schema file at path.
func Load(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(path, src)
}

// Compile compiles schema source. filename only labels positions.
func Compile(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", firstError(err))
	}
	if def := v.LookupPath(cue.ParsePath(DefinitionName)); def.Exists() {
		v = def
	}
	return &Schema{ctx: ctx, value: v, source: filename}, nil
}

// Source names the file the schema came from.
func (s *Schema) Source() string {
	return s.source
}

// Validate checks payload. The result must be concrete: every required
// field present with a value satisfying its constraint.
func (s *Schema) Validate(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.ctx.Encode(payload)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	u := s.value.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return firstError(err)
	}
	return nil
}

// firstError reduces a CUE error list to its first entry with position.
func firstError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	verr := &ValidationError{
		Field:   strings.Join(first.Path(), "."),
		Message: first.Error(),
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		verr.Pos = positions[0]
	}
	return verr
}
