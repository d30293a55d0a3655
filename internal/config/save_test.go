package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &ForemanConfig{
		MaxConcurrent: 6,
		Users: []UserConfig{
			{ID: "release-bot", Role: "admin"},
		},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded ForemanConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}

	if loaded.MaxConcurrent != 6 {
		t.Errorf("Expected max_concurrent 6, got %d", loaded.MaxConcurrent)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	cfg := &ForemanConfig{MaxConcurrent: 1}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	parentDir := filepath.Dir(path)
	if _, err := os.Stat(parentDir); os.IsNotExist(err) {
		t.Fatalf("Parent directory was not created: %s", parentDir)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &ForemanConfig{
		MaxConcurrent: 2,
		Users: []UserConfig{
			{ID: "root", Role: "superadmin"},
			{ID: "release-bot", Role: "admin"},
			{ID: "dev", Role: "developer"},
		},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Loading the saved file back applies it over the defaults.
	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.MaxConcurrent != 2 {
		t.Errorf("max_concurrent mismatch: got %d, want 2", loaded.MaxConcurrent)
	}
	if len(loaded.Users) != 4 {
		// 3 defaults, root and dev overridden in place, release-bot added.
		t.Errorf("user count mismatch: got %d, want 4", len(loaded.Users))
	}

	found := false
	for _, user := range loaded.Users {
		if user.ID == "release-bot" && user.Role == "admin" {
			found = true
		}
	}
	if !found {
		t.Error("saved user release-bot did not survive the round trip")
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	if err := Save(&ForemanConfig{MaxConcurrent: 3}, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := Save(&ForemanConfig{MaxConcurrent: 9}, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded ForemanConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if loaded.MaxConcurrent != 9 {
		t.Errorf("Expected max_concurrent 9, got %d", loaded.MaxConcurrent)
	}
}
