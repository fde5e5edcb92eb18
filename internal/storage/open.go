package storage

import (
	"context"
	"fmt"

	"minitwit/internal/config"
)

// Open returns the Store selected by cfg.Driver, with its schema in place.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := OpenSQLite(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx, cfg.Schema); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverGormSQLite:
		return OpenGormSQLite(ctx, cfg.Database)
	case config.DriverPostgres:
		return OpenGormPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
