package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks tool arguments against JSON schemas.
// It caches compiled schemas.
type Validator struct {
	cache sync.Map // map[string]*gojsonschema.Schema
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks argsJSON against schemaData (a map, struct or JSON string)
func (v *Validator) Validate(schemaData any, argsJSON string) error {
	// 1. Get or compile the schema
	schema, err := v.compile(schemaData)
	if err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}

	// 2. Validate
	result, err := schema.Validate(gojsonschema.NewStringLoader(argsJSON))
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}

	// 3. Format errors
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("schema validation failed:\n- %s", dumpErrors(errs))
}

func (v *Validator) compile(schemaData any) (*gojsonschema.Schema, error) {
	var key string
	if s, ok := schemaData.(string); ok {
		key = s
	} else {
		b, err := json.Marshal(schemaData)
		if err != nil {
			return nil, err
		}
		key = string(b)
	}

	if val, ok := v.cache.Load(key); ok {
		return val.(*gojsonschema.Schema), nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(key))
	if err != nil {
		return nil, err
	}

	v.cache.Store(key, schema)
	return schema, nil
}

// dumpErrors keeps the first three errors
func dumpErrors(errs []string) string {
	more := ""
	if len(errs) > 3 {
		more = fmt.Sprintf("\n... and %d more", len(errs)-3)
		errs = errs[:3]
	}
	return strings.Join(errs, "\n- ") + more
}
