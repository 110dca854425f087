package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/morezero/agent-link/pkg/codec"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func compileSchema(doc map[string]any) (*gojsonschema.Schema, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return schema, nil
}

// Validate checks payload against the command's input schema.
// Commands without a schema accept any payload.
func (e *Entry) Validate(payload map[string]any) error {
	if e.schema == nil {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}
	result, err := e.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return InvalidArgument("%s: payload could not be validated: %v", e.Name, err)
	}
	if result.Valid() {
		return nil
	}
	fields := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		fields = append(fields, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return &CommandError{
		Code:    codec.CodeInvalidArgument,
		Message: fmt.Sprintf("%s: payload does not match input schema", e.Name),
		Details: map[string]any{"fields": fields},
	}
}
