package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// SnapshotKind identifies what a snapshot holds.
type SnapshotKind string

const (
	SnapshotThread   SnapshotKind = "thread"
	SnapshotReplyIDs SnapshotKind = "reply_ids"
	SnapshotArticle  SnapshotKind = "article"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Snapshots writes timestamped JSON files under <root>/<kind>/ for
// inspecting what a resolution saw.
type Snapshots struct {
	root string
	now  func() time.Time
}

// NewSnapshots creates a snapshot writer rooted at dir, normally
// <CacheDir>/snapshots.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{root: dir, now: time.Now}
}

// Dir returns the directory for a snapshot kind.
func (s *Snapshots) Dir(kind SnapshotKind) string {
	return filepath.Join(s.root, string(kind))
}

// filename is <timestamp>_<name>.json. The timestamp prefix keeps
// directory order chronological.
func (s *Snapshots) filename(name string) string {
	ts := s.now().UTC().Format("2006-01-02T15-04-05.000")
	if name = unsafeName.ReplaceAllString(name, "_"); name == "" {
		return ts + ".json"
	}
	return ts + "_" + name + ".json"
}

// SaveSnapshot saves JSON-serializable data as a snapshot of the given kind.
// Returns the path to the saved file.
func SaveSnapshot[T any](s *Snapshots, kind SnapshotKind, name string, data T) (string, error) {
	dir := s.Dir(kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, s.filename(name))
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot loads JSON data from a specific file path.
func LoadSnapshot[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return data, nil
}

// LoadLatestSnapshot loads the most recent snapshot of a kind.
// Returns the data, the filepath it was loaded from, and any error.
func LoadLatestSnapshot[T any](s *Snapshots, kind SnapshotKind) (T, string, error) {
	var zero T

	latestPath, err := s.Latest(kind)
	if err != nil {
		return zero, "", err
	}

	data, err := LoadSnapshot[T](latestPath)
	if err != nil {
		return zero, "", err
	}

	return data, latestPath, nil
}

// Latest returns the path to the most recent snapshot of a kind.
func (s *Snapshots) Latest(kind SnapshotKind) (string, error) {
	dir := s.Dir(kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no %s snapshots", kind)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no %s snapshots", kind)
	}

	return filepath.Join(dir, files[len(files)-1]), nil
}
