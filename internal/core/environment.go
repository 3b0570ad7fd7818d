package core

// Environment represents the deployment environment of the service.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// String returns the string representation of the environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// Decode lets envconfig populate an Environment field directly from APP_ENV.
func (e *Environment) Decode(v string) error {
	*e = ParseEnvironment(v)
	return nil
}

// ParseEnvironment normalises the provided value into one of the known environments.
// Unknown values fall back to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production, "prod":
		return Production
	case Staging:
		return Staging
	case Testing, "test":
		return Testing
	default:
		return Development
	}
}
