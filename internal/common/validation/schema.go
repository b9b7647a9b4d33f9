// Package validation checks job variables against the activity registry's
// input schemas.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/pkg/registry"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

// Validator compiles each activity's input schema once and validates job
// variables by task type. Task types without a schema always pass.
type Validator struct {
	registry *registry.ActivityRegistry

	mu      sync.Mutex
	schemas map[string]*gojsonschema.Schema
}

func NewValidator(reg *registry.ActivityRegistry) *Validator {
	return &Validator{
		registry: reg,
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

func (v *Validator) schemaFor(taskType string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[taskType]; ok {
		return s, nil
	}

	var schema *gojsonschema.Schema
	if activity, ok := v.registry.ByTaskType(taskType); ok && len(activity.InputSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(activity.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", taskType, err)
		}
		schema = compiled
	}
	v.schemas[taskType] = schema
	return schema, nil
}

// Check validates vars and returns the detailed result.
func (v *Validator) Check(taskType string, vars map[string]interface{}) (*ValidationResult, error) {
	schema, err := v.schemaFor(taskType)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(vars))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldOf(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// Validate returns a SCHEMA_VALIDATION_FAILED StandardError when vars do not
// match the task type's input schema.
func (v *Validator) Validate(taskType string, vars map[string]interface{}) error {
	result, err := v.Check(taskType, vars)
	if err != nil {
		return apperrors.NewSchemaValidationError(taskType, err.Error())
	}
	if !result.Valid {
		return apperrors.NewSchemaValidationError(taskType, strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// fieldOf reports missing properties by their own path rather than the parent's.
func fieldOf(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() != "required" {
		return field
	}
	prop, ok := desc.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "(root)" {
		return prop
	}
	return field + "." + prop
}
