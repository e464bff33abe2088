package assets

import (
	_ "embed"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/wippyai/wasi-harness/errors"
)

//go:embed default.yaml
var defaultManifest []byte

// Manifest names the guest binary and describes every preopen the sandbox
// exposes, including the artifacts placed in them.
type Manifest struct {
	Guest    GuestSpec     `yaml:"guest"`
	Source   SourceSpec    `yaml:"source"`
	Preopens []PreopenSpec `yaml:"preopens"`
	// Checksums maps an artifact source path to the hex SHA-256 of its
	// stored (decompressed) content.
	Checksums map[string]string `yaml:"checksums,omitempty"`
}

type GuestSpec struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// SourceSpec locates the file submissions are written to.
type SourceSpec struct {
	Preopen string `yaml:"preopen"`
	File    string `yaml:"file"`
}

type PreopenSpec struct {
	Path     string       `yaml:"path"`
	ReadOnly bool         `yaml:"readonly,omitempty"`
	Dirs     []string     `yaml:"dirs,omitempty"`
	Bundles  []BundleSpec `yaml:"bundles,omitempty"`
}

// BundleSpec places files fetched from Source/<name> at Dir/<name>.
type BundleSpec struct {
	Dir    string   `yaml:"dir"`
	Source string   `yaml:"source"`
	Files  []string `yaml:"files"`
}

// Artifact is one file to fetch. A source ending in .zst is stored
// decompressed under its name without the suffix.
type Artifact struct {
	Name   string
	Source string
	// Preopen and Path place the artifact; both are empty for the guest.
	Preopen string
	Path    string
}

// Default returns the embedded miri manifest.
func Default() *Manifest {
	m, err := ParseManifest(defaultManifest)
	if err != nil {
		panic("assets: embedded manifest: " + err.Error())
	}
	return m
}

// ParseManifest decodes and validates a YAML manifest. Unknown fields are
// rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.DisallowUnknownField()); err != nil {
		return nil, errors.New(errors.PhaseAssets, errors.KindInvalidData).
			Path("manifest").
			Detail("decode manifest").
			Cause(err).
			Build()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for structural mistakes.
func (m *Manifest) Validate() error {
	if m.Guest.Source == "" {
		return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "guest"}, "guest source is required")
	}
	if m.Guest.Name == "" {
		m.Guest.Name = path.Base(m.Guest.Source)
	}
	if len(m.Preopens) == 0 {
		return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "preopens"}, "at least one preopen is required")
	}

	seen := make(map[string]bool, len(m.Preopens))
	for _, p := range m.Preopens {
		if !strings.HasPrefix(p.Path, "/") {
			return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "preopens", p.Path}, "preopen path must be absolute")
		}
		if seen[p.Path] {
			return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "preopens", p.Path}, "duplicate preopen")
		}
		seen[p.Path] = true
		for _, b := range p.Bundles {
			if b.Source == "" {
				return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "preopens", p.Path, b.Dir}, "bundle source is required")
			}
			for _, f := range b.Files {
				if f == "" || strings.Contains(f, "/") {
					return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "preopens", p.Path, b.Dir}, "bundle file names must be plain names")
				}
			}
		}
	}

	if m.Source.File == "" {
		return errors.InvalidData(errors.PhaseAssets, []string{"manifest", "source"}, "source file is required")
	}
	if !seen[m.Source.Preopen] {
		return errors.New(errors.PhaseAssets, errors.KindNotFound).
			Path("manifest", "source", m.Source.Preopen).
			Detail("source preopen is not declared").
			Build()
	}
	return nil
}

// Artifacts lists every file to fetch, the guest first, then preopen
// contents in manifest order.
func (m *Manifest) Artifacts() []Artifact {
	out := []Artifact{{Name: m.Guest.Name, Source: m.Guest.Source}}
	for _, p := range m.Preopens {
		for _, b := range p.Bundles {
			for _, f := range b.Files {
				name := strings.TrimSuffix(f, ".zst")
				out = append(out, Artifact{
					Name:    name,
					Source:  path.Join(b.Source, f),
					Preopen: p.Path,
					Path:    path.Join(b.Dir, name),
				})
			}
		}
	}
	return out
}
