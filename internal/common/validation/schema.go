// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// consultationInputSchema constrains the shape of generate-consultation job
// variables before the orchestrator's own semantic validation runs.
const consultationInputSchema = `{
	"type": "object",
	"required": ["predictions", "sessionId"],
	"properties": {
		"predictions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["condition", "confidence"],
				"properties": {
					"condition":         {"type": "string", "minLength": 1},
					"confidence":        {"type": "number", "minimum": 0, "maximum": 1},
					"severity":          {"type": "string"},
					"category":          {"type": "string"},
					"requiresAttention": {"type": "boolean"},
					"description":       {"type": "string"}
				}
			}
		},
		"symptoms":  {"type": "string"},
		"sessionId": {"type": "string", "minLength": 1},
		"riskLevel": {"type": "string"},
		"createdAt": {"type": "string", "format": "date-time"}
	}
}`

var consultationSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(consultationInputSchema))
	if err != nil {
		panic(fmt.Sprintf("consultation input schema is invalid: %v", err))
	}
	consultationSchema = schema
}

// ValidationResult reports schema violations for a job payload.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateConsultationInput checks raw job variables against the
// consultation input schema.
func ValidateConsultationInput(raw []byte) (*ValidationResult, error) {
	result, err := consultationSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	out := &ValidationResult{Valid: false}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return out, nil
}
