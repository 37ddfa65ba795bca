package fileio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Helper function that checks if a file exists.
func FileExists(filename string) bool {
	if fstat, err := os.Stat(filename); err == nil && !fstat.IsDir() {
		return true
	}
	return false
}

// ReadJSON reads and deserializes the given JSON file into v.
func ReadJSON(filename string, v interface{}) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %v", filename, err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("failed to deserialize '%s': %v", filename, err)
	}
	return nil
}

// WriteJSON serializes v and writes it to the given file. The content is
// written to a temporary file and renamed into place so a failure mid-write
// never leaves behind a truncated file.
func WriteJSON(filename string, v interface{}) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize content for '%s': %v", filename, err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %v", filename, err)
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, content, 0o644); err != nil {
		return fmt.Errorf("failed to write '%s': %v", tmpFile, err)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		return fmt.Errorf("failed to move '%s' into place: %v", tmpFile, err)
	}
	return nil
}
