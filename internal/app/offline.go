package app

import (
	"errors"
	"fmt"

	"genboard/internal/config"
	"genboard/internal/generator"
	"genboard/internal/storage"
	logx "genboard/pkg/logx"
)

// Offline gives CLI subcommands the stored lists without connecting to the
// chat platform.
type Offline struct {
	Config *config.Config
	Log    logx.Logger
	Store  storage.Store
	Gens   *generator.Store
	Render generator.RenderOptions

	logs *logx.Service
}

func OpenOffline(cfgPath string) (*Offline, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	logCfg := mapLoggingConfig(cfg)
	logCfg.Chat.Enabled = false
	// Subcommands print to stdout; keep routine log lines out of it.
	logCfg.Level = "warn"
	logs, log := logx.New(logCfg)

	sc, _ := mapStorageConfig(cfg)
	st, err := storage.Open(sc, log)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	ds, _ := mapDashboardConfig(cfg)
	return &Offline{
		Config: cfg,
		Log:    log,
		Store:  st,
		Gens:   generator.NewStore(st, log),
		Render: generator.RenderOptions{Location: ds.Service.Location, Title: ds.Service.Title},
		logs:   logs,
	}, nil
}

func (o *Offline) Close() error {
	return errors.Join(o.Store.Close(), o.logs.Close())
}
