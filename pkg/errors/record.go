package errors

import (
	"fmt"
	"strings"
)

// RecordContext locates a value inside a submitted record collection
type RecordContext struct {
	Collection string `json:"collection"`
	Index      int    `json:"index"`
	Field      string `json:"field"`
	Value      string `json:"value,omitempty"`
	Expected   string `json:"expected,omitempty"`
}

// Path renders the location as collection[index].field
func (c *RecordContext) Path() string {
	if c.Field == "" {
		return fmt.Sprintf("%s[%d]", c.Collection, c.Index)
	}
	return fmt.Sprintf("%s[%d].%s", c.Collection, c.Index, c.Field)
}

// RecordError is a validation error tied to one record of an input collection
type RecordError struct {
	*ReconcilerError
	Record   *RecordContext `json:"record"`
	Examples []string       `json:"examples,omitempty"`
}

// Error returns the validation message, which already names the record path
func (e *RecordError) Error() string {
	return e.Message
}

// Unwrap exposes the embedded ReconcilerError so errors.As finds it
func (e *RecordError) Unwrap() error {
	return e.ReconcilerError
}

// GetDetailedError returns a detailed multi-line error description
func (e *RecordError) GetDetailedError() string {
	var lines []string

	lines = append(lines, fmt.Sprintf("ERROR: %s", e.Message))

	if e.Record != nil {
		lines = append(lines, fmt.Sprintf("  → Record: %s[%d]", e.Record.Collection, e.Record.Index))
		if e.Record.Field != "" {
			lines = append(lines, fmt.Sprintf("  → Field: %s", e.Record.Field))
		}
		if e.Record.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Record.Value))
		}
		if e.Record.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Record.Expected))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}

	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// WithExamples adds example values to help fix the error
func (e *RecordError) WithExamples(examples ...string) *RecordError {
	e.Examples = examples
	return e
}

// NewRecordError creates a validation error for collection[index].field
func NewRecordError(code ErrorCode, ctx *RecordContext, message string) *RecordError {
	base := New(CategoryValidation, code, message).
		WithContext("collection", ctx.Collection).
		WithContext("index", ctx.Index).
		WithContext("field", ctx.Field)
	if ctx.Value != "" {
		base.WithContext("value", ctx.Value)
	}

	return &RecordError{
		ReconcilerError: base,
		Record:          ctx,
	}
}

// FieldTypeError reports a record field that has the wrong JSON type
func FieldTypeError(collection string, index int, field, expected string, value interface{}) *RecordError {
	ctx := &RecordContext{
		Collection: collection,
		Index:      index,
		Field:      field,
		Expected:   expected,
	}
	if value != nil {
		ctx.Value = truncateValue(fmt.Sprintf("%v", value), 40)
	}

	message := fmt.Sprintf("%s must be a %s", ctx.Path(), expected)
	err := NewRecordError(CodeInvalidType, ctx, message)

	switch field {
	case "amount":
		err.Code = CodeInvalidAmount
		err.WithSuggestion("send amounts as JSON numbers without currency symbols")
		return err.WithExamples("1250.00", "-75.5")
	case "date":
		err.Code = CodeInvalidDate
		err.WithSuggestion("send dates as strings in YYYY-MM-DD format")
		return err.WithExamples("2025-01-15", "2025-01-15T09:30:00Z")
	default:
		err.WithSuggestion(fmt.Sprintf("set %s to a %s value", field, expected))
		return err
	}
}

// NotAnObjectError reports an array element that is not a JSON object
func NotAnObjectError(collection string, index int) *RecordError {
	ctx := &RecordContext{Collection: collection, Index: index, Expected: "object"}
	err := NewRecordError(CodeInvalidType, ctx, fmt.Sprintf("%s must be an object", ctx.Path()))
	err.WithSuggestion("each element must be an object with itemid, details, amount and date")
	return err
}

// EmptyCollectionError reports an empty or missing collection
func EmptyCollectionError(collection string) *ReconcilerError {
	return ValidationError(CodeEmptyInput, collection, nil, nil)
}

func truncateValue(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
