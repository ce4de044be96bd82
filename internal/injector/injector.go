//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/worldcore/internal/app"
	"github.com/zeusync/worldcore/internal/config"
)

// InitializeApp builds the whole process from cfg.
func InitializeApp(cfg *config.Config) (*app.App, error) {
	wire.Build(
		app.NewLogger,
		app.NewMetrics,
		app.NewGame,
		app.NewExecutor,
		app.NewServer,
		app.NewChunkSource,
		app.New,
	)
	return nil, nil
}
