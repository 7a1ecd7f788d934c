package settings

// StoreBuilderOption is a functional option applied to a store during construction.
type StoreBuilderOption func(*store)

// WithPath binds the store to a JSON file used by Save.
//
// Parameters:
//   - path: the settings file
//
// Returns:
//   - StoreBuilderOption: option function to apply
func WithPath(path string) StoreBuilderOption {
	return func(s *store) {
		s.path = path
	}
}

// WithAutoSave controls whether Update writes the file after every change. Enabled by default.
//
// Parameters:
//   - enabled: false to save only on explicit Save calls
//
// Returns:
//   - StoreBuilderOption: option function to apply
func WithAutoSave(enabled bool) StoreBuilderOption {
	return func(s *store) {
		s.autoSave = enabled
	}
}
