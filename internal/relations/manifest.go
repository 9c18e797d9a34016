package relations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// Manifest stores the indexing state of all source tables.
type Manifest struct {
	Version int                   `json:"version"`
	LastRun time.Time             `json:"last_run"`
	Tables  map[string]TableState `json:"tables"`
	mu      sync.RWMutex
}

// TableState stores the indexing state of a single table.
type TableState struct {
	LastIndexed time.Time     `json:"last_indexed"`
	Duration    time.Duration `json:"duration"`
	DocCount    int           `json:"doc_count"`
	Skipped     int           `json:"skipped"`
	Error       string        `json:"error,omitempty"`
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Tables:  make(map[string]TableState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	if manifest.Tables == nil {
		manifest.Tables = make(map[string]TableState)
	}

	return &manifest, nil
}

// Save writes the manifest to disk atomically.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}

	return nil
}

// TableState returns the state of a table.
func (m *Manifest) TableState(table string) (TableState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Tables[table]
	return state, ok
}

// RecordRun stores the result of a successful indexing run.
func (m *Manifest) RecordRun(table string, state TableState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Error = ""
	m.Tables[table] = state
	m.LastRun = state.LastIndexed
}

// RecordFailure keeps the last successful state of a table and sets its error.
func (m *Manifest) RecordFailure(table string, err error, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.Tables[table]
	state.Error = err.Error()
	m.Tables[table] = state
	m.LastRun = at
}

// TableNames returns the names of all tables in the manifest, sorted.
func (m *Manifest) TableNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TablesWithErrors returns the tables whose last run failed.
func (m *Manifest) TablesWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for name, state := range m.Tables {
		if state.Error != "" {
			result[name] = state.Error
		}
	}
	return result
}
