package model

import "path/filepath"

// Config carries every path and platform parameter the tool needs. It is
// built once at startup and passed by value into each component; nothing
// reads configuration ambiently.
type Config struct {
	Arch    string `yaml:"arch"`
	Release string `yaml:"release"`

	// BuildDir holds per-build working files: info.json, composed
	// manifest dumps, resolver scratch space.
	BuildDir string `yaml:"build_dir"`

	// StoreDir is the osbuild object store the execution engine writes
	// artifacts into.
	StoreDir string `yaml:"store_dir"`

	// LibDir is passed to the execution engine as --libdir.
	LibDir string `yaml:"lib_dir"`

	// ReposDir contains one YAML repo definition per file.
	ReposDir string `yaml:"repos_dir"`

	// TemplatesDir contains the commit and image manifest templates.
	TemplatesDir string `yaml:"templates_dir"`

	// ServeRepo is the ostree repository served over HTTP for rebase
	// clients. ServeURL is how those clients reach it.
	ServeRepo string `yaml:"serve_repo"`
	ServeURL  string `yaml:"serve_url"`

	// Signer is the external signing helper executable.
	Signer string `yaml:"signer"`

	// OSBuild names the execution engine binary. Defaults to "osbuild".
	OSBuild string `yaml:"osbuild"`

	// Depsolver names the external package resolver helper.
	Depsolver string `yaml:"depsolver"`

	// BuildRoot selects the package set installed into the build root.
	BuildRoot RepoSpec `yaml:"build_root"`
}

// DefaultConfig returns a Config rooted at the given directory with the
// conventional subdirectory layout filled in.
func DefaultConfig(root string) Config {
	return Config{
		Arch:         "x86_64",
		Release:      "30",
		BuildDir:     filepath.Join(root, "build"),
		StoreDir:     filepath.Join(root, "store"),
		LibDir:       "/usr/lib/osbuild",
		ReposDir:     filepath.Join(root, "repos"),
		TemplatesDir: filepath.Join(root, "templates"),
		ServeRepo:    filepath.Join(root, "serve", "repo"),
		ServeURL:     "http://10.0.2.2:8000/",
		OSBuild:      "osbuild",
		Depsolver:    "dnf-json",
	}
}

// TreeSpecPath returns the path of the optional tree customization file.
func (c Config) TreeSpecPath() string {
	return filepath.Join(c.TemplatesDir, "tree.yaml")
}

// CommitTemplate returns the path of the tree-commit manifest template.
func (c Config) CommitTemplate() string {
	return filepath.Join(c.TemplatesDir, "commit.json")
}

// ImageTemplate returns the path of the image manifest template.
func (c Config) ImageTemplate() string {
	return filepath.Join(c.TemplatesDir, "image.json")
}
