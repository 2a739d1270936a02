package cli

import (
	"github.com/go-pkgz/lgr"

	"github.com/paimon-protocol/erde/internal/config"
	"github.com/paimon-protocol/erde/internal/di"
)

// newLogger builds the run's logger, honoring the --debug persistent
// flag set on rootCmd.
func newLogger() lgr.L {
	if debug {
		return lgr.New(lgr.Debug, lgr.CallerFile, lgr.CallerFunc)
	}
	return lgr.Default()
}

// buildProvider loads configuration from the --conf flag (or defaults
// plus ERDE_ environment variables when unset) and wires every ERDE
// service behind it.
func buildProvider() (*di.Provider, error) {
	cfg, err := config.Load(config.Paths{Main: configFile})
	if err != nil {
		return nil, err
	}

	container := di.New()
	provider := di.NewProvider(container, cfg, newLogger())
	if err := provider.RegisterAll(); err != nil {
		return nil, err
	}
	return provider, nil
}
