package config

// DefaultConfig returns the built-in configuration: an admission ceiling of
// four and a seed registry with one user per role.
func DefaultConfig() *ForemanConfig {
	return &ForemanConfig{
		MaxConcurrent: 4,
		Users: []UserConfig{
			{ID: "root", Role: "superadmin"},
			{ID: "ops", Role: "admin"},
			{ID: "dev", Role: "developer"},
		},
	}
}
