package keygen

import (
	"regexp"
	"testing"
)

func TestGenerate(t *testing.T) {
	key, err := Generate("clp", 4)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !regexp.MustCompile(`^CLP-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`).MatchString(key) {
		t.Errorf("key = %q, unexpected format", key)
	}
}

func TestGenerateNoPrefix(t *testing.T) {
	key, err := Generate("", 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`).MatchString(key) {
		t.Errorf("key = %q, unexpected format", key)
	}
}

func TestGenerateRejectsZeroGroups(t *testing.T) {
	if _, err := Generate("X", 0); err == nil {
		t.Error("expected error for zero groups")
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := License()
		if err != nil {
			t.Fatalf("License: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}
