package config

// UserConfig seeds one entry in the workflow engine's user registry.
type UserConfig struct {
	ID   string `json:"id"`
	Role string `json:"role"` // "developer", "admin" or "superadmin"
}

// ForemanConfig is the top-level configuration.
type ForemanConfig struct {
	MaxConcurrent int          `json:"max_concurrent"` // Scheduler admission ceiling
	Users         []UserConfig `json:"users"`
}
