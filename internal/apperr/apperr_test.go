package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{code: CodeBadRequest, want: http.StatusBadRequest},
		{code: CodeUnauthorized, want: http.StatusUnauthorized},
		{code: CodeForbidden, want: http.StatusForbidden},
		{code: CodeNotFound, want: http.StatusNotFound},
		{code: CodeMethodNotSupported, want: http.StatusMethodNotAllowed},
		{code: CodeTooManyRequests, want: http.StatusTooManyRequests},
		{code: CodeInternal, want: http.StatusInternalServerError},
		{code: Code("SOMETHING_ELSE"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := StatusFor(tt.code); got != tt.want {
				t.Fatalf("StatusFor(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestFromWrapsUnknownErrorsAsInternal(t *testing.T) {
	cause := errors.New("dynamodb: throttled")
	got := From(cause)
	if got.Code != CodeInternal {
		t.Fatalf("expected INTERNAL_SERVER_ERROR, got %s", got.Code)
	}
	if !errors.Is(got, cause) {
		t.Fatal("expected cause to be preserved for logging")
	}
	if got.Message == cause.Error() {
		t.Fatal("internal cause must not leak into the client message")
	}
}

func TestFromKeepsWrappedAppErrors(t *testing.T) {
	wrapped := fmt.Errorf("loading plan: %w", NotFound("Plan not found"))
	got := From(wrapped)
	if got.Code != CodeNotFound || got.Message != "Plan not found" {
		t.Fatalf("unexpected error %+v", got)
	}
	if !Is(wrapped, CodeNotFound) {
		t.Fatal("expected Is to see through wrapping")
	}
}
