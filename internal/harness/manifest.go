package harness

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/freeeve/treeharness/internal/store"
)

// ManifestSuffix is appended to a store path to name its run manifest.
const ManifestSuffix = ".manifest.json"

// Manifest describes the last load run against a store file.
type Manifest struct {
	RunID           string        `json:"run_id"`
	Scenario        string        `json:"scenario"`
	Count           int64         `json:"count"`
	CheckpointEvery int64         `json:"checkpoint_every"`
	PageSize        int           `json:"page_size"`
	Seed            int64         `json:"seed,omitempty"`
	Started         time.Time     `json:"started"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	Inserted        int64         `json:"inserted"`
	Final           store.ID      `json:"final_id"`
	Checkpoints     []Checkpoint  `json:"checkpoints"`
	Error           string        `json:"error,omitempty"`
}

// ManifestPath returns the manifest path for the store at path.
func ManifestPath(path string) string {
	return path + ManifestSuffix
}

// CheckpointIDs returns the recorded checkpoint IDs in order.
func (m *Manifest) CheckpointIDs() []store.ID {
	ids := make([]store.ID, len(m.Checkpoints))
	for i, cp := range m.Checkpoints {
		ids[i] = cp.ID
	}
	return ids
}

// WriteManifest saves m next to the store at path.
func WriteManifest(fs afero.Fs, path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	// Write to temp file then rename for atomicity
	target := ManifestPath(path)
	tempPath := target + ".tmp"
	if err := afero.WriteFile(fs, tempPath, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := fs.Rename(tempPath, target); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the store at path.
func ReadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, ManifestPath(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
