package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Run verdicts.
const (
	StatusSuccess = "success"
	// StatusPartial means the archive is on disk but the upload failed.
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Metadata for a single backup run
type Metadata struct {
	Service       string        `json:"service"`
	Site          string        `json:"site"`
	Mode          string        `json:"mode"`
	URL           string        `json:"url,omitempty"`
	FromRecord    bool          `json:"from_record"`
	FilePath      string        `json:"file_path,omitempty"`
	ExpectedBytes int64         `json:"expected_bytes"`
	SizeBytes     int64         `json:"size_bytes"`
	Entries       int           `json:"entries,omitempty"`
	Upload        *UploadRecord `json:"upload,omitempty"`
	Status        string        `json:"status"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	DurationMS    int64         `json:"duration_ms"`
}

// UploadRecord describes the copy sent to object storage.
type UploadRecord struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
	Bytes  int64  `json:"bytes"`
	Error  string `json:"error,omitempty"`
}

// MetadataPath returns the metadata file that sits next to artifact.
func MetadataPath(artifact string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + ".json"
}

func (m *Metadata) fail(err error) {
	m.Status = StatusFailed
	m.Error = err.Error()
}

// Load reads a metadata file
func (m *Metadata) Load(filePath string) error {
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the metadata at filePath, replacing any previous file atomically.
func (m *Metadata) Write(filePath string) error {
	dirPath := filepath.Dir(filePath)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("ensure metadata directory %q: %w", dirPath, err)
	}

	tmp, err := os.CreateTemp(dirPath, ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata file in %q: %w", dirPath, err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("rename metadata file %q: %w", filePath, err)
	}
	return nil
}
