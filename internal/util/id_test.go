package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if _, err := uuid.Parse(plain); err != nil {
		t.Fatalf("NewID(\"\") = %q is not a uuid: %v", plain, err)
	}

	prefixed := NewID("req")
	if !strings.HasPrefix(prefixed, "req_") {
		t.Fatalf("expected req_ prefix, got %q", prefixed)
	}
	if NewID("req") == prefixed {
		t.Fatal("expected distinct ids")
	}
}
