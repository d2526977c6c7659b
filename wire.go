//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package g3d

import "github.com/google/wire"

// InitializeEngine creates an engine configured by the file at path.
func InitializeEngine(path string) (*Engine, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
