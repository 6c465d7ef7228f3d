package envfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if keys := f.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestRoundTripPreservesLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	original := "# venue credentials\nVENUE_API_KEY=abc123\n\nexport MODEL_NAME=\"gpt-4o\"\n"
	if err := os.WriteFile(path, []byte(original), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != original {
		t.Fatalf("round trip changed file:\n%q\nwant:\n%q", got, original)
	}
}

func TestGetQuotedAndExported(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	seed := "export MODEL_NAME=\"gpt-4o\"\nVENUE_URL='https://api.example'\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := f.Get("MODEL_NAME"); !ok || v != "gpt-4o" {
		t.Fatalf("MODEL_NAME = %q, %v", v, ok)
	}
	if v, ok := f.Get("VENUE_URL"); !ok || v != "https://api.example" {
		t.Fatalf("VENUE_URL = %q, %v", v, ok)
	}
}

func TestSetUpdatesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	seed := "# keep me\nA=1\nB=2\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.Set("A", "changed")
	f.Set("C", "new value")
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "# keep me\nA=changed\nB=2\nC=\"new value\"\n"
	if string(got) != want {
		t.Fatalf("file = %q, want %q", got, want)
	}
}

func TestUnsetKeepsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	seed := "# secret below\nTOKEN=xyz\nOTHER=1\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.Unset("TOKEN")
	if _, ok := f.Get("TOKEN"); ok {
		t.Fatal("TOKEN still set after Unset")
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "# secret below\nOTHER=1\n"
	if string(got) != want {
		t.Fatalf("file = %q, want %q", got, want)
	}
}

func TestLastAssignmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("A=first\nA=second\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := f.Get("A"); v != "second" {
		t.Fatalf("A = %q, want second", v)
	}
	f.Set("A", "third")
	if v, _ := f.Get("A"); v != "third" {
		t.Fatalf("A = %q, want third", v)
	}
}
