package repository

import (
	"context"
	"fmt"

	"diary-sync-server/internal/config"
	"diary-sync-server/pkg/logger"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"go.uber.org/zap"
)

// Open connects the backend named by cfg.Store.Driver. Creating the CouchDB
// database or the SQLite schema on first use is part of opening.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	log = logger.OrNop(log)

	switch cfg.Store.Driver {
	case "couch":
		return openCouch(ctx, cfg.Database, log)
	case "sqlite":
		return openSQLite(cfg.SQLite, log)
	case "memory":
		log.Warn("using in-memory store; diary entries will not survive a restart")
		return NewMemoryBackedStore(NewMemoryStore()), nil
	}

	return nil, config.ValidateDriver(cfg.Store.Driver)
}

func NewMemoryBackedStore(m *MemoryStore) *Store {
	return &Store{
		Driver:   "memory",
		Entries:  m,
		Versions: m,
	}
}

func openCouch(ctx context.Context, dbCfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	client, err := kivik.New("couch", dbCfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, dbCfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbCfg.Name); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		log.Info("created CouchDB database", zap.String("name", dbCfg.Name))
	}

	log.Info("connected to CouchDB",
		zap.String("host", dbCfg.Host),
		zap.String("port", dbCfg.Port),
		zap.String("db", dbCfg.Name))

	return &Store{
		Driver:   "couch",
		Entries:  NewCouchEntryRepository(client, dbCfg.Name),
		Versions: NewCouchVersionRepository(client, dbCfg.Name),
		ping: func(ctx context.Context) error {
			ok, err := client.Ping(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("CouchDB did not answer ping")
			}
			return nil
		},
		close: client.Close,
	}, nil
}

func openSQLite(sqlCfg config.SQLiteConfig, log *zap.Logger) (*Store, error) {
	db, err := OpenSQLite(sqlCfg.Path)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
	}

	log.Info("opened SQLite database", zap.String("path", sqlCfg.Path))

	return &Store{
		Driver:   "sqlite",
		Entries:  NewSQLEntryRepository(db),
		Versions: NewSQLVersionRepository(db),
		ping:     sqlDB.PingContext,
		close:    sqlDB.Close,
	}, nil
}
