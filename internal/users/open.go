package users

import (
	"context"
	"fmt"

	"github.com/yourusername/secrets-app/internal/config"
)

// Open は設定に従って Store を作成します。
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreMongo:
		s, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite, config.StorePostgres:
		var (
			s   *GormStore
			err error
		)
		if cfg.StoreDriver == config.StoreSQLite {
			s, err = OpenSQLite(cfg.DatabaseDSN)
		} else {
			s, err = OpenPostgres(cfg.DatabaseDSN)
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
