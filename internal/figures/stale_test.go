package figures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsStale_MissingManifest(t *testing.T) {
	if !IsStale(t.TempDir(), 24*time.Hour) {
		t.Error("IsStale should return true when there is no manifest")
	}
}

func TestIsStale_FreshManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
	})

	if IsStale(dir, 24*time.Hour) {
		t.Error("IsStale should return false for a fresh manifest")
	}
}

func TestIsStale_OldManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{
		GeneratedAt:      time.Now().UTC().Add(-10 * 24 * time.Hour).Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
	})

	if !IsStale(dir, 7*24*time.Hour) {
		t.Error("IsStale should return true for a manifest older than maxAge")
	}
	if IsStale(dir, 0) {
		t.Error("IsStale should ignore age when maxAge is zero")
	}
}

func TestIsStale_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ManifestName), []byte("{invalid json"), 0644)

	if !IsStale(dir, 24*time.Hour) {
		t.Error("IsStale should return true for a corrupt manifest")
	}
}

func TestIsStale_VersionMismatch(t *testing.T) {
	dir := t.TempDir()

	// manifest written before generator_version existed
	writeManifest(t, dir, map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if !IsStale(dir, 24*time.Hour) {
		t.Error("IsStale should return true for a manifest without generator_version")
	}

	writeManifest(t, dir, map[string]interface{}{
		"generated_at":      time.Now().UTC().Format(time.RFC3339),
		"generator_version": "0",
	})
	if !IsStale(dir, 24*time.Hour) {
		t.Error("IsStale should return true for an older generator version")
	}
}

func TestIsStale_BadTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{GeneratedAt: "yesterday", GeneratorVersion: GeneratorVersion})

	if !IsStale(dir, 0) {
		t.Error("IsStale should return true when generated_at does not parse")
	}
}
