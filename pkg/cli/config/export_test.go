package config

// NewProfileForTest creates a Profile config for testing purposes
func NewProfileForTest(path string) *Profile {
	return &Profile{path: path}
}
