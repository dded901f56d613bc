package ports

import "go.trai.ch/strata/internal/core/domain"

// ConfigLoader defines the interface for loading the engine configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers the configuration starting at cwd and returns a validated config.
	// When no configuration file exists the defaults are returned.
	Load(cwd string) (domain.Config, error)
}
