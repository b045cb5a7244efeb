// Package app opens a careline workspace: config, store and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"careline/internal/config"
	"careline/internal/db"
	"careline/internal/engine"
	"careline/internal/migrate"
)

// Workspace is an open workspace. Close releases the store.
type Workspace struct {
	Dir    string
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

// LoadConfig reads configPath when given, else careline.yml in the workspace,
// else the built-in defaults.
func LoadConfig(workspace, configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.FromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(workspace)
}

// Open loads config, opens and migrates the store and builds the engine.
func Open(workspace, configPath string, log *zap.Logger) (*Workspace, error) {
	cfg, err := LoadConfig(workspace, configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(context.Background(), conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if log != nil {
		for _, m := range applied {
			log.Info("migration applied", zap.Int("version", m.Version), zap.String("name", m.Name))
		}
	}
	eng, err := engine.New(conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if log != nil {
		log.Debug("workspace opened", zap.String("db", db.Path(workspace)), zap.Int("rules", eng.Rules.Len()))
	}
	return &Workspace{Dir: workspace, Config: cfg, DB: conn, Engine: eng}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
