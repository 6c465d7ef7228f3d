package sshserver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureHostKeyGeneratesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "ssh_host_key")

	first, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("host key mode = %v", info.Mode().Perm())
	}

	second, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !bytes.Equal(first.PublicKey().Marshal(), second.PublicKey().Marshal()) {
		t.Fatal("reloaded host key differs from generated one")
	}
}

func TestEnsureHostKeyRequiresPath(t *testing.T) {
	if _, err := EnsureHostKey("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
