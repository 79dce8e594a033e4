package directory

import (
	"context"
	"testing"
)

func TestStaticResolver_DisplayName(t *testing.T) {
	r := NewStaticResolver(map[string]string{
		"usr-1": "Alice Moreau",
	})

	if got := r.DisplayName(context.Background(), "usr-1"); got != "Alice Moreau" {
		t.Errorf("expected registered name, got %q", got)
	}
}

func TestStaticResolver_UnknownFallsBackToID(t *testing.T) {
	r := NewStaticResolver(nil)

	if got := r.DisplayName(context.Background(), "usr-unknown"); got != "usr-unknown" {
		t.Errorf("expected raw id fallback, got %q", got)
	}
}

func TestStaticResolver_Register(t *testing.T) {
	r := NewStaticResolver(nil)
	r.Register("usr-2", "Ben Okafor")
	r.Register("usr-2", "Ben A. Okafor")

	if got := r.DisplayName(context.Background(), "usr-2"); got != "Ben A. Okafor" {
		t.Errorf("expected replaced name, got %q", got)
	}
}
