package figures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// IsStale reports whether the export in dir needs regenerating: the
// manifest is missing, unreadable, older than maxAge or written by a
// different generator version. A maxAge of zero disables the age check.
func IsStale(dir string, maxAge time.Duration) bool {
	m, err := ReadManifest(dir)
	if err != nil {
		return true
	}
	if m.GeneratorVersion != GeneratorVersion {
		return true
	}

	generatedAt, err := time.Parse(time.RFC3339, m.GeneratedAt)
	if err != nil {
		return true
	}
	return maxAge > 0 && time.Since(generatedAt) > maxAge
}

// ReadManifest loads the manifest of an existing export
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
