package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    *ForemanConfig
		projectConfig   *ForemanConfig
		expectCeiling   int
		expectUserCount int
		checkUser       string
		expectRole      string
	}{
		{
			name:            "No config files - returns defaults",
			globalConfig:    nil,
			projectConfig:   nil,
			expectCeiling:   4,
			expectUserCount: 3,
		},
		{
			name: "Global only - adds new user and raises ceiling",
			globalConfig: &ForemanConfig{
				MaxConcurrent: 8,
				Users: []UserConfig{
					{ID: "release-bot", Role: "admin"},
				},
			},
			projectConfig:   nil,
			expectCeiling:   8,
			expectUserCount: 4, // 3 defaults + 1 new
			checkUser:       "release-bot",
			expectRole:      "admin",
		},
		{
			name:         "Project only - overrides a default user's role",
			globalConfig: nil,
			projectConfig: &ForemanConfig{
				Users: []UserConfig{
					{ID: "dev", Role: "admin"},
				},
			},
			expectCeiling:   4, // Zero in file keeps the default
			expectUserCount: 3, // Same count, dev modified
			checkUser:       "dev",
			expectRole:      "admin",
		},
		{
			name: "Both with merge - global adds, project overrides",
			globalConfig: &ForemanConfig{
				MaxConcurrent: 8,
				Users: []UserConfig{
					{ID: "release-bot", Role: "admin"},
				},
			},
			projectConfig: &ForemanConfig{
				MaxConcurrent: 2,
			},
			expectCeiling:   2, // Project wins
			expectUserCount: 4,
			checkUser:       "release-bot",
			expectRole:      "admin",
		},
		{
			name: "Project overrides global for the same user",
			globalConfig: &ForemanConfig{
				Users: []UserConfig{
					{ID: "release-bot", Role: "developer"},
				},
			},
			projectConfig: &ForemanConfig{
				Users: []UserConfig{
					{ID: "release-bot", Role: "superadmin"},
				},
			},
			expectCeiling:   4,
			expectUserCount: 4,
			checkUser:       "release-bot",
			expectRole:      "superadmin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = filepath.Join(tmpDir, "global.json")
				writeConfigFile(t, globalPath, tt.globalConfig)
			}

			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = filepath.Join(tmpDir, "project.json")
				writeConfigFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.MaxConcurrent != tt.expectCeiling {
				t.Errorf("max_concurrent = %d, want %d", cfg.MaxConcurrent, tt.expectCeiling)
			}
			if got := len(cfg.Users); got != tt.expectUserCount {
				t.Errorf("user count = %d, want %d", got, tt.expectUserCount)
			}

			if tt.checkUser != "" {
				found := false
				for _, user := range cfg.Users {
					if user.ID == tt.checkUser {
						found = true
						if user.Role != tt.expectRole {
							t.Errorf("user %q role = %q, want %q", tt.checkUser, user.Role, tt.expectRole)
						}
					}
				}
				if !found {
					t.Errorf("expected user %q not found", tt.checkUser)
				}
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	if cfg.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d, want 4", cfg.MaxConcurrent)
	}
	if len(cfg.Users) != 3 {
		t.Errorf("user count = %d, want 3", len(cfg.Users))
	}
}

func TestDefaultConfigCoversEveryRole(t *testing.T) {
	cfg := DefaultConfig()

	roles := make(map[string]bool)
	for _, user := range cfg.Users {
		roles[user.Role] = true
	}

	for _, role := range []string{"developer", "admin", "superadmin"} {
		if !roles[role] {
			t.Errorf("default registry missing a %s user", role)
		}
	}
}

func writeConfigFile(t *testing.T, path string, cfg *ForemanConfig) {
	t.Helper()

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}
