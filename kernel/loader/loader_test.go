package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openimage/osbuildctl/kernel/model"
	"github.com/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osbuildctl.yaml")
	content := []byte("arch: aarch64\nrelease: \"31\"\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Arch != "aarch64" {
		t.Errorf("expected arch 'aarch64', got '%s'", cfg.Arch)
	}
	if cfg.Release != "31" {
		t.Errorf("expected release '31', got '%s'", cfg.Release)
	}
	// Unset fields keep their defaults.
	if cfg.StoreDir != filepath.Join(dir, "store") {
		t.Errorf("expected default store dir, got '%s'", cfg.StoreDir)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestLoadRepos(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	write("base.yaml", "baseurl: https://example.com/base\ngpgkeys: [https://example.com/key]\n")
	write("extra.yaml", "id: extras\nbaseurl: https://example.com/extras\n")
	write("notes.txt", "ignored")

	repos, err := LoadRepos(dir)
	if err != nil {
		t.Fatalf("LoadRepos failed: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("expected 2 repos, got %d", len(repos))
	}
	if repos[0].ID != "base" {
		t.Errorf("expected id defaulted from file name, got '%s'", repos[0].ID)
	}
	if repos[1].ID != "extras" {
		t.Errorf("expected declared id 'extras', got '%s'", repos[1].ID)
	}
}

func TestLoadTreeSpec_Missing(t *testing.T) {
	tree, err := LoadTreeSpec(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing tree spec must not be an error: %v", err)
	}
	if tree != nil {
		t.Error("expected nil tree spec for a missing file")
	}
}

func TestLoadTreeSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.yaml")
	content := []byte("ref: os/custom\nenabled_services: [sshd.service]\npackages:\n  repos: [base]\n  include: [kernel]\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write tree spec: %v", err)
	}

	tree, err := LoadTreeSpec(path)
	if err != nil {
		t.Fatalf("LoadTreeSpec failed: %v", err)
	}
	if tree.Ref != "os/custom" {
		t.Errorf("expected ref 'os/custom', got '%s'", tree.Ref)
	}
	if len(tree.Packages.Repos) != 1 || tree.Packages.Repos[0] != "base" {
		t.Errorf("unexpected packages spec: %+v", tree.Packages)
	}
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.json")
	content := []byte(`{"pipeline": {"stages": [{"name": "org.osbuild.rpm"}]}}`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	m, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	if m.Pipeline.FindStage(model.StageRPM) == nil {
		t.Error("expected the rpm stage to survive the round trip")
	}
}

func TestLoadTemplate_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	_, err := LoadTemplate(path)
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}
