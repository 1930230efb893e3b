package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Inline schemas for the request bodies this API accepts. Keeping them in
// the binary avoids a deploy-time schema directory.
var schemaSources = map[string]string{
	"analyze-request": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["wallets"],
		"additionalProperties": false,
		"properties": {
			"wallets": {
				"type": "array",
				"minItems": 1,
				"maxItems": 10,
				"items": {"type": "string", "minLength": 32, "maxLength": 44}
			},
			"backfill_days": {"type": "integer", "minimum": 1, "maximum": 730}
		}
	}`,
	"token-request": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["subject"],
		"additionalProperties": false,
		"properties": {
			"subject": {"type": "string", "minLength": 1},
			"roles": {"type": "array", "items": {"type": "string"}}
		}
	}`,
}

// SchemaValidator handles JSON schema validation for API request bodies.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	for name, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateBytes validates a raw JSON body against a named schema.
func (sv *SchemaValidator) ValidateBytes(schemaName string, body []byte) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "body",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, resultError := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   resultError.Field(),
			Message: resultError.Description(),
			Code:    "SCHEMA_VIOLATION",
			Value:   resultError.Value(),
		})
	}
	return vr
}

// ToAPIError converts a failed result to the standard error envelope.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	details := make([]map[string]interface{}, 0, len(vr.Errors))
	for _, validationError := range vr.Errors {
		detail := map[string]interface{}{
			"field":   validationError.Field,
			"message": validationError.Message,
			"code":    validationError.Code,
		}
		if validationError.Value != nil {
			if _, err := json.Marshal(validationError.Value); err == nil {
				detail["value"] = validationError.Value
			}
		}
		details = append(details, detail)
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_FAILED",
			"message": "Request validation failed",
			"details": details,
		},
	}
}
