package formula

import (
	"errors"
	"testing"
)

func TestParseErrorIsKindParse(t *testing.T) {
	_, err := Parse("1+")
	if err == nil {
		t.Fatalf("expected an error")
	}
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected a *Error, got %T", err)
	}
	if ferr.Kind != KindParse {
		t.Fatalf("Kind = %v, want %v", ferr.Kind, KindParse)
	}
}

func TestErrorKindStringsAreDistinct(t *testing.T) {
	kinds := []Kind{KindParse, KindEmission, KindInvariant}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		if seen[s] {
			t.Fatalf("Kind %v collides on string %q", k, s)
		}
		seen[s] = true
	}
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindInvariant, "do the thing", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}
