package database

import (
	"context"
	"fmt"
	"log/slog"

	dbconfig "roomchat/pkg/database"
	"roomchat/pkg/interfaces"
)

// Open returns the store for the configured driver
func Open(ctx context.Context, config *dbconfig.Config, logger *slog.Logger) (interfaces.Store, error) {
	switch config.Driver {
	case dbconfig.DriverSQLite:
		return NewManager(config, logger)
	case dbconfig.DriverPostgres:
		return NewPostgresStore(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}
