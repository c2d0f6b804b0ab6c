package device

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/duetrack/duetrack/internal/kvstore"
)

func TestIDStable(t *testing.T) {
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "meta.json"))
	if err != nil {
		t.Fatalf("failed to open kvstore: %v", err)
	}

	first, err := ID(kv)
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	if first == "" {
		t.Fatal("ID returned empty string")
	}

	second, err := ID(kv)
	if err != nil {
		t.Fatalf("second ID call failed: %v", err)
	}
	if second != first {
		t.Errorf("device id not stable: %q then %q", first, second)
	}
}

func TestIDSanitized(t *testing.T) {
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "meta.json"))
	if err != nil {
		t.Fatalf("failed to open kvstore: %v", err)
	}

	id, err := ID(kv)
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}

	safe := regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	if !safe.MatchString(id) {
		t.Errorf("device id contains unsafe characters: %q", id)
	}
}

func TestIDSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	kv, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("failed to open kvstore: %v", err)
	}
	first, err := ID(kv)
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}

	kv2, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	second, err := ID(kv2)
	if err != nil {
		t.Fatalf("ID after reopen failed: %v", err)
	}
	if second != first {
		t.Errorf("device id changed across reopen: %q then %q", first, second)
	}
}
