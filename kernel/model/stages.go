package model

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Stage and assembler kinds the composer understands. Anything else is
// carried through as an opaque option bag.
const (
	StageRPM        = "org.osbuild.rpm"
	StageSystemd    = "org.osbuild.systemd"
	StageRPMOSTree  = "org.osbuild.rpm-ostree"
	StageSELinux    = "org.osbuild.selinux"
	StageOSTreePull = "org.osbuild.ostree"

	AssemblerOSTreeCommit = "org.osbuild.ostree.commit"
	AssemblerQEMU         = "org.osbuild.qemu"

	SourceFiles  = "org.osbuild.files"
	SourceOSTree = "org.osbuild.ostree"
)

// StageOptions is implemented by the typed option block of a known stage
// kind.
type StageOptions interface {
	StageName() string
}

// OptionsFactory creates a zero value of a stage kind's typed options.
type OptionsFactory func() StageOptions

var (
	stageRegistryMu sync.RWMutex
	stageRegistry   = make(map[string]OptionsFactory)
)

// RegisterStageKind registers the typed options factory for a stage kind.
func RegisterStageKind(name string, factory OptionsFactory) {
	stageRegistryMu.Lock()
	defer stageRegistryMu.Unlock()
	if _, dup := stageRegistry[name]; dup {
		panic("RegisterStageKind called twice for " + name)
	}
	stageRegistry[name] = factory
}

// KnownStageKind reports whether a typed options block is registered for
// the given stage name.
func KnownStageKind(name string) bool {
	stageRegistryMu.RLock()
	defer stageRegistryMu.RUnlock()
	_, ok := stageRegistry[name]
	return ok
}

// DecodeOptions returns the stage's options as the registered typed block.
// ok is false for unregistered kinds; those stay opaque.
func (s *Stage) DecodeOptions() (StageOptions, bool, error) {
	stageRegistryMu.RLock()
	factory, ok := stageRegistry[s.Name]
	stageRegistryMu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	opts := factory()
	if err := remarshal(s.Options, opts); err != nil {
		return nil, true, errors.Wrapf(err, "stage %s options", s.Name)
	}
	return opts, true, nil
}

// SetOptions replaces the stage's option bag with the encoding of a typed
// block. The stage name must match the block's kind.
func (s *Stage) SetOptions(opts StageOptions) error {
	if opts.StageName() != s.Name {
		return errors.Errorf("options for %s applied to stage %s", opts.StageName(), s.Name)
	}
	var raw Options
	if err := remarshal(opts, &raw); err != nil {
		return errors.Wrapf(err, "stage %s options", s.Name)
	}
	s.Options = raw
	return nil
}

func remarshal(from, to interface{}) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}

// RemoteSpec is a named, URL-addressed source a client can fetch refs from.
// Option lists hold at most one entry per name; rewrites replace.
type RemoteSpec struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RPMOptions installs an exact, ordered package set into the tree.
type RPMOptions struct {
	GPGKeys  []string `json:"gpgkeys,omitempty"`
	Packages []string `json:"packages"`
}

func (o *RPMOptions) StageName() string { return StageRPM }

// SystemdOptions configures service enablement inside the tree.
type SystemdOptions struct {
	EnabledServices []string `json:"enabled_services,omitempty"`
	DefaultTarget   string   `json:"default_target,omitempty"`
}

func (o *SystemdOptions) StageName() string { return StageSystemd }

// RPMOSTreeOptions controls the rpm-to-ostree tree conversion.
type RPMOSTreeOptions struct {
	EtcGroupMembers []string `json:"etc_group_members,omitempty"`
}

func (o *RPMOSTreeOptions) StageName() string { return StageRPMOSTree }

// SELinuxNested is the ostree block inside the selinux stage options.
type SELinuxNested struct {
	Commit string `json:"commit,omitempty"`
}

// SELinuxOptions relabels the tree; when operating on a deployed commit it
// carries the commit id in a nested ostree block.
type SELinuxOptions struct {
	FileContexts string         `json:"file_contexts,omitempty"`
	OSTree       *SELinuxNested `json:"ostree,omitempty"`
}

func (o *SELinuxOptions) StageName() string { return StageSELinux }

// OSTreePullOptions deploys a commit into the image tree, optionally
// through a configured remote.
type OSTreePullOptions struct {
	Ref     string       `json:"ref,omitempty"`
	Commit  string       `json:"commit,omitempty"`
	Remotes []RemoteSpec `json:"remotes,omitempty"`
}

func (o *OSTreePullOptions) StageName() string { return StageOSTreePull }

// SetRemote adds or replaces the remote with the given name. Replace, not
// append: the option list holds one entry per name.
func (o *OSTreePullOptions) SetRemote(r RemoteSpec) {
	for i := range o.Remotes {
		if o.Remotes[i].Name == r.Name {
			o.Remotes[i] = r
			return
		}
	}
	o.Remotes = append(o.Remotes, r)
}

// RemoveRemote deletes the remote with the given name, if present.
func (o *OSTreePullOptions) RemoveRemote(name string) {
	for i := range o.Remotes {
		if o.Remotes[i].Name == name {
			o.Remotes = append(o.Remotes[:i], o.Remotes[i+1:]...)
			return
		}
	}
}

// OSTreeCommitOptions is the tree-commit assembler configuration.
type OSTreeCommitOptions struct {
	Ref    string `json:"ref"`
	Parent string `json:"parent,omitempty"`
	OSVer  string `json:"os-version,omitempty"`
}

func (o *OSTreeCommitOptions) StageName() string { return AssemblerOSTreeCommit }

// QEMUOptions is the disk-image assembler configuration.
type QEMUOptions struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Size     uint64 `json:"size,omitempty"`
	PTUUID   string `json:"ptuuid,omitempty"`
	RootFS   string `json:"root_fs_uuid,omitempty"`
}

func (o *QEMUOptions) StageName() string { return AssemblerQEMU }

func init() {
	RegisterStageKind(StageRPM, func() StageOptions { return &RPMOptions{} })
	RegisterStageKind(StageSystemd, func() StageOptions { return &SystemdOptions{} })
	RegisterStageKind(StageRPMOSTree, func() StageOptions { return &RPMOSTreeOptions{} })
	RegisterStageKind(StageSELinux, func() StageOptions { return &SELinuxOptions{} })
	RegisterStageKind(StageOSTreePull, func() StageOptions { return &OSTreePullOptions{} })
	RegisterStageKind(AssemblerOSTreeCommit, func() StageOptions { return &OSTreeCommitOptions{} })
	RegisterStageKind(AssemblerQEMU, func() StageOptions { return &QEMUOptions{} })
}

// ParseRef splits a "remote:ref" name into its remote prefix and bare ref.
// Refs without a prefix return an empty remote.
func ParseRef(ref string) (remote, bare string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

// JoinRef namespaces a bare ref under a remote.
func JoinRef(remote, ref string) string {
	if remote == "" {
		return ref
	}
	return fmt.Sprintf("%s:%s", remote, ref)
}
