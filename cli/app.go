package cli

import (
	"context"
	"fmt"

	"fluxa/agent"
	"fluxa/db"
	"fluxa/llm"
	"fluxa/utils"
)

// app bundles what a command needs; close releases it
type app struct {
	config *utils.Config
	logger *utils.Logger
	store  *db.DB
	repo   *db.Repository
	client *llm.Client
	agent  *agent.Agent
}

// loadConfig reads --config, or the default config file (created on first use)
func loadConfig() (*utils.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = utils.EnsureDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}
	return utils.LoadConfig(path)
}

func openApp(ctx context.Context) (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := config.Logging
	if !verbose {
		logCfg.Level = "warn"
	}
	logger, err := utils.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Starting %s v%s", config.AppName, version)

	store, err := db.Open(config.Database, logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo, err := db.NewRepository(ctx, store, logger)
	if err != nil {
		store.Close()
		logger.Close()
		return nil, err
	}

	client := llm.NewClient(config.LMStudio, logger)

	return &app{
		config: config,
		logger: logger,
		store:  store,
		repo:   repo,
		client: client,
		agent:  agent.New(repo, client, config, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
