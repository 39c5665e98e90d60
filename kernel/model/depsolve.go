package model

// PackageRef is one resolved package in a depsolved transaction.
type PackageRef struct {
	Name           string `json:"name"`
	Epoch          string `json:"epoch,omitempty"`
	Version        string `json:"version"`
	Release        string `json:"release"`
	Arch           string `json:"arch"`
	RepoID         string `json:"repo_id"`
	Path           string `json:"path,omitempty"`
	RemoteLocation string `json:"remote_location"`
	Checksum       string `json:"checksum"`
}

// DependencySet is the output of one resolution: the forward transaction in
// resolver order plus the armored signing keys of the selected repos. The
// ordering is part of the contract; composed manifests must come out
// byte-identical for identical repo state.
type DependencySet struct {
	Dependencies []PackageRef `json:"dependencies"`
	GPGKeys      []string     `json:"gpgkeys"`
}

// Checksums returns the dependency checksums in transaction order.
func (d *DependencySet) Checksums() []string {
	sums := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		sums = append(sums, dep.Checksum)
	}
	return sums
}

// URLs returns the checksum-to-location map for a files source.
func (d *DependencySet) URLs() map[string]string {
	urls := make(map[string]string, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		urls[dep.Checksum] = dep.RemoteLocation
	}
	return urls
}

// RepoSpec declares which repos to resolve against and what to select.
type RepoSpec struct {
	Repos   []string `yaml:"repos" json:"repos"`
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// TreeSpec is the optional customization applied to a commit composition.
// Every field is optional; an absent field leaves the template untouched.
type TreeSpec struct {
	Ref             string   `yaml:"ref,omitempty" json:"ref,omitempty"`
	EnabledServices []string `yaml:"enabled_services,omitempty" json:"enabled_services,omitempty"`
	DefaultTarget   string   `yaml:"default_target,omitempty" json:"default_target,omitempty"`
	EtcGroupMembers []string `yaml:"etc_group_members,omitempty" json:"etc_group_members,omitempty"`
	Packages        RepoSpec `yaml:"packages" json:"packages"`
}

// RepoConfig is one package repository definition from the repos directory.
type RepoConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	BaseURL  string   `yaml:"baseurl"`
	Metalink string   `yaml:"metalink,omitempty"`
	GPGKeys  []string `yaml:"gpgkeys"`
}
