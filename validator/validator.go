/*
The validator package keeps the set of named JSON schemas a client knows how
to speak. Schemas are compiled once at registration and looked up by exact
name when inbound content needs to be checked.
*/
package validator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ContentType says how the data chunk of a message with this schema is
// interpreted: as schema-validated JSON or as an opaque byte string.
type ContentType int

const (
	ContentTypeJson ContentType = iota
	ContentTypeBinary
)

// A Schema pairs a name with the JSON-schema document that messages of that
// type must satisfy. For binary content the document is ignored.
type Schema struct {
	Name        string
	ContentType ContentType
	Document    map[string]interface{}
}

type compiledSchema struct {
	contentType ContentType
	schema      *gojsonschema.Schema
}

// Validator is safe for concurrent use. Registration is expected to happen
// during setup; validation happens on the receive path.
type Validator struct {
	lock    sync.RWMutex
	schemas map[string]compiledSchema
}

func New() *Validator {
	return &Validator{
		schemas: make(map[string]compiledSchema),
	}
}

// RegisterSchema compiles and stores the schema under its name. Registering
// a name twice is rejected with a SchemaRedefinedError.
func (v *Validator) RegisterSchema(schema Schema) error {
	if schema.Name == "" {
		return fmt.Errorf("cannot register a schema without a name")
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.schemas[schema.Name]; ok {
		return &SchemaRedefinedError{SchemaName: schema.Name}
	}

	compiled := compiledSchema{contentType: schema.ContentType}

	if schema.ContentType == ContentTypeJson {
		document := schema.Document
		if document == nil {
			document = map[string]interface{}{"type": "object"}
		}

		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(document))
		if err != nil {
			return fmt.Errorf("failed to compile schema %s: %w", schema.Name, err)
		}
		compiled.schema = s
	}

	v.schemas[schema.Name] = compiled
	return nil
}

// Includes reports whether a schema was registered under the given name.
func (v *Validator) Includes(name string) bool {
	v.lock.RLock()
	defer v.lock.RUnlock()
	_, ok := v.schemas[name]
	return ok
}

// ContentType returns the content type of the named schema.
func (v *Validator) ContentType(name string) (ContentType, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	compiled, ok := v.schemas[name]
	if !ok {
		return ContentTypeJson, &SchemaNotFoundError{SchemaName: name}
	}
	return compiled.contentType, nil
}

// Validate checks a JSON document against the named schema.
func (v *Validator) Validate(name string, document []byte) error {
	v.lock.RLock()
	compiled, ok := v.schemas[name]
	v.lock.RUnlock()

	if !ok {
		return &SchemaNotFoundError{SchemaName: name}
	}

	if compiled.contentType == ContentTypeBinary {
		// binary content carries no JSON to check
		return nil
	}

	result, err := compiled.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &ValidationFailedError{SchemaName: name, Reason: err.Error()}
	}

	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return &ValidationFailedError{SchemaName: name, Reason: strings.Join(reasons, "; ")}
	}

	return nil
}
