package model

// OSTreeSourceRemote tells the engine where to pull a commit from and what
// signature metadata to verify it against.
type OSTreeSourceRemote struct {
	URL string            `json:"url"`
	GPG SignatureMetadata `json:"gpg,omitempty"`
}

// OSTreeSourceCommit is one fetchable commit inside an ostree source.
type OSTreeSourceCommit struct {
	Remote OSTreeSourceRemote `json:"remote"`
}

// OSTreeSource is the synthetic source the image composition injects so the
// engine can fetch-and-verify the just-built commit as if it were remote.
type OSTreeSource struct {
	Commits map[string]OSTreeSourceCommit `json:"commits"`
}

// ToOptions encodes a typed value into an option bag.
func ToOptions(v interface{}) (Options, error) {
	var opts Options
	if err := remarshal(v, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Decode unpacks an option bag into a typed value.
func (o Options) Decode(v interface{}) error {
	return remarshal(o, v)
}
