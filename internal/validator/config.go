package validator

type Config struct {
	// SpecPath points to a YAML endpoint table. Empty uses the built-in table.
	SpecPath string `envconfig:"VALIDATOR_SPEC_PATH"`
}

// Source returns the configured source, or nil for the built-in table.
func (c Config) Source() Source {
	if c.SpecPath == "" {
		return nil
	}
	return FileSource{Path: c.SpecPath}
}
