package g3d

import "github.com/google/wire"

// ProviderSet builds an Engine from a configuration file.
var ProviderSet = wire.NewSet(ProvideConfig, ProvideEngine)

// ProvideConfig loads the configuration at path. An empty path yields the
// defaults.
func ProvideConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// ProvideEngine creates an engine from cfg.
func ProvideEngine(cfg Config) (*Engine, error) {
	return New(WithConfig(cfg))
}
