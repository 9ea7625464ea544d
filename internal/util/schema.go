package util

import (
	"fmt"
	"reflect"
	"strings"
)

// ParamSpec describes one positional capability parameter. Type uses the JSON
// schema vocabulary: string, integer, number, boolean, array, object.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ParamsFromStruct derives an ordered parameter list from a struct using
// reflection. Field order is preserved; json tags name the parameter, the
// description tag documents it, and pointer or omitempty fields are optional.
func ParamsFromStruct(structType any) []ParamSpec {
	t := reflect.TypeOf(structType)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	params := make([]ParamSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
		}

		params = append(params, ParamSpec{
			Name:        name,
			Type:        getJSONType(field.Type),
			Description: field.Tag.Get("description"),
			Optional:    hasOmitEmpty(jsonTag) || isPointer(field.Type),
		})
	}
	return params
}

// ValidateParameters checks args against the declared parameters: every
// required parameter must be present and every declared value must match its
// type. Undeclared args are allowed.
func ValidateParameters(args map[string]any, params []ParamSpec) error {
	for _, p := range params {
		value, exists := args[p.Name]
		if !exists {
			if p.Optional {
				continue
			}
			return &ValidationError{
				Field:   p.Name,
				Message: "required field is missing",
			}
		}
		if !isValidType(value, p.Type) {
			return &ValidationError{
				Field:   p.Name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", p.Type, value),
			}
		}
	}
	return nil
}

// GoType maps a parameter type onto the Go type shown to models and used for
// interpreter bindings.
func GoType(jsonType string) reflect.Type {
	switch jsonType {
	case "string":
		return reflect.TypeOf("")
	case "integer":
		return reflect.TypeOf(0)
	case "number":
		return reflect.TypeOf(float64(0))
	case "boolean":
		return reflect.TypeOf(false)
	case "array":
		return reflect.TypeOf([]any(nil))
	case "object":
		return reflect.TypeOf(map[string]any(nil))
	default:
		return reflect.TypeOf((*any)(nil)).Elem()
	}
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}

// GoTypeName renders GoType for humans, spelling interface{} as any.
func GoTypeName(jsonType string) string {
	switch jsonType {
	case "array":
		return "[]any"
	case "object":
		return "map[string]any"
	case "string", "integer", "number", "boolean":
		return GoType(jsonType).String()
	default:
		return "any"
	}
}
