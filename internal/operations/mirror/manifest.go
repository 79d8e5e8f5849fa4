package mirror

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ParseManifest decodes a latest.yml document. Syntax errors, empty
// documents and documents that are not a mapping wrap ErrManifestParse.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrManifestParse)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping at line %d", ErrManifestParse, root.Line)
	}

	var manifest Manifest
	if err := root.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	return &manifest, nil
}

// ReadManifest parses a manifest file from disk.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// SemVer parses Version as a semantic version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	return semver.NewVersion(m.Version)
}

// describeTransition explains how the mirrored version moves from prev to
// next. prev may be nil on a first run.
func describeTransition(prev, next *Manifest) string {
	if prev == nil || prev.Version == "" {
		return "new mirror"
	}
	if prev.Version == next.Version {
		return "unchanged"
	}

	pv, perr := prev.SemVer()
	nv, nerr := next.SemVer()
	if perr != nil || nerr != nil {
		return "changed"
	}

	switch nv.Compare(pv) {
	case 1:
		return "upgrade"
	case -1:
		return "downgrade"
	default:
		return "unchanged"
	}
}
