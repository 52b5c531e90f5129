package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
		expectHTTP int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
			expectHTTP: http.StatusBadRequest,
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeInvalidAmount,
			message:    "record1[0].amount must be a number",
			expectCode: 3,
			expectHTTP: http.StatusBadRequest,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
			expectHTTP: http.StatusInternalServerError,
		},
		{
			name:       "embedding error",
			category:   CategoryEmbedding,
			code:       CodeEmbeddingUnavailable,
			message:    "provider down",
			expectCode: 7,
			expectHTTP: http.StatusServiceUnavailable,
		},
		{
			name:       "conversion error",
			category:   CategoryConversion,
			code:       CodeConversionFailed,
			message:    "all chunks failed",
			expectCode: 8,
			expectHTTP: http.StatusBadGateway,
		},
		{
			name:       "network error",
			category:   CategoryNetwork,
			code:       CodeUpstreamError,
			message:    "upstream 500",
			expectCode: 6,
			expectHTTP: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.HTTPStatus() != tt.expectHTTP {
				t.Errorf("expected HTTP status %d, got %d", tt.expectHTTP, err.HTTPStatus())
			}
			if !strings.HasPrefix(err.Error(), tt.message) {
				t.Errorf("expected error string to start with %q, got %q", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a stack trace to be captured")
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestReconciliationErrorReportsCauseStatus(t *testing.T) {
	sentinel := errors.New("model not loaded")
	embedErr := EmbeddingError(CodeEmbeddingUnavailable, "openai", sentinel)
	err := ReconciliationError(CodeMatchingFailed, "source embedding", embedErr)

	if err.HTTPStatus() != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", err.HTTPStatus())
	}
	if !Is(err, sentinel) {
		t.Error("expected sentinel to be reachable through the chain")
	}

	plain := ReconciliationError(CodeMatchingFailed, "scan", errors.New("boom"))
	if plain.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", plain.HTTPStatus())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "records.xml", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["source"] != "records.xml" {
			t.Errorf("expected source context, got %v", err.Context["source"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeEmptyInput, "data", nil, nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Message != "data array cannot be empty" {
			t.Errorf("unexpected message %q", err.Message)
		}
	})

	t.Run("EmbeddingError", func(t *testing.T) {
		err := EmbeddingError(CodeDimensionMismatch, "hashing", nil)

		if err.Context["provider"] != "hashing" {
			t.Errorf("expected provider context, got %v", err.Context["provider"])
		}
		if err.Cause != nil {
			t.Errorf("expected no cause, got %v", err.Cause)
		}
	})

	t.Run("ConversionError", func(t *testing.T) {
		err := ConversionError(CodePartialConversion, "chunk 2", errors.New("timeout"))

		if err.Category != CategoryConversion {
			t.Errorf("expected conversion category, got %s", err.Category)
		}
		if err.Context["stage"] != "chunk 2" {
			t.Errorf("expected stage context, got %v", err.Context["stage"])
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeInvalidFormat, "error 3"),
		New(CategoryValidation, CodeInvalidAmount, "error 4"),
		New(CategoryEmbedding, CodeEmbeddingUnavailable, "error 5"),
		New(CategoryValidation, CodeInvalidDate, "error 6"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 6 {
		t.Errorf("expected total 6, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if summary.ByCode[CodeInvalidDate] != 1 {
		t.Errorf("expected 1 invalid date error, got %d", summary.ByCode[CodeInvalidDate])
	}
	if len(summary.SampleErrors) != 5 {
		t.Errorf("expected 5 sample errors, got %d", len(summary.SampleErrors))
	}
	if !summary.HasCategory(CategoryEmbedding) {
		t.Error("expected to have embedding category")
	}
	if summary.HasCode(CodeUpstreamError) {
		t.Error("expected not to have upstream error code")
	}
	if !strings.HasPrefix(summary.Error(), "6 errors occurred") {
		t.Errorf("unexpected summary string %q", summary.Error())
	}
	if summary.GetExitCode() != 7 {
		t.Errorf("expected exit code 7, got %d", summary.GetExitCode())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestAsReconcilerError(t *testing.T) {
	base := New(CategoryNetwork, CodeUpstreamError, "bad gateway")
	wrapped := fmt.Errorf("forwarding: %w", base)

	got, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("expected to find a ReconcilerError in the chain")
	}
	if got != base {
		t.Errorf("expected the original error, got %v", got)
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("expected plain error not to convert")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected nil for nil error")
	}

	existing := New(CategoryParse, CodeInvalidData, "bad")
	if WrapIfNeeded(existing, CategoryInternal, CodeUnexpectedError, "x") != existing {
		t.Error("expected existing ReconcilerError to be returned unchanged")
	}

	wrapped := WrapIfNeeded(errors.New("raw"), CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Category != CategoryInternal {
		t.Errorf("expected internal category, got %s", wrapped.Category)
	}
}

func TestFieldTypeError(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		expected   string
		value      interface{}
		wantMsg    string
		wantCode   ErrorCode
		wantSample bool
	}{
		{
			name:     "itemid",
			field:    "itemid",
			expected: "string",
			value:    42,
			wantMsg:  "record1[3].itemid must be a string",
			wantCode: CodeInvalidType,
		},
		{
			name:       "amount",
			field:      "amount",
			expected:   "number",
			value:      "$12",
			wantMsg:    "record1[3].amount must be a number",
			wantCode:   CodeInvalidAmount,
			wantSample: true,
		},
		{
			name:       "date",
			field:      "date",
			expected:   "string (YYYY-MM-DD format)",
			wantMsg:    "record1[3].date must be a string (YYYY-MM-DD format)",
			wantCode:   CodeInvalidDate,
			wantSample: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FieldTypeError("record1", 3, tt.field, tt.expected, tt.value)

			if err.Error() != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, err.Error())
			}
			if err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, err.Code)
			}
			if (len(err.Examples) > 0) != tt.wantSample {
				t.Errorf("examples presence mismatch: %v", err.Examples)
			}
			if err.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", err.HTTPStatus())
			}

			var target *ReconcilerError
			if !errors.As(err, &target) {
				t.Error("expected errors.As to find the embedded ReconcilerError")
			}
		})
	}
}

func TestRecordErrorDetailed(t *testing.T) {
	err := FieldTypeError("record2", 0, "amount", "number", "12,50 EUR")
	detailed := err.GetDetailedError()

	for _, want := range []string{
		"ERROR: record2[0].amount must be a number",
		"→ Record: record2[0]",
		"→ Field: amount",
		"→ Value: '12,50 EUR'",
		"→ Expected: number",
		"→ Examples:",
	} {
		if !strings.Contains(detailed, want) {
			t.Errorf("expected detailed error to contain %q, got:\n%s", want, detailed)
		}
	}
}

func TestNotAnObjectError(t *testing.T) {
	err := NotAnObjectError("Data", 2)
	if err.Error() != "Data[2] must be an object" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
