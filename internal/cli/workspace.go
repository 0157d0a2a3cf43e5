package cli

import (
	"github.com/fengqlin/GrandR/internal/config"
	"github.com/fengqlin/GrandR/internal/recorder"
	"github.com/fengqlin/GrandR/internal/report"
	"github.com/fengqlin/GrandR/internal/store"
	"github.com/fengqlin/GrandR/internal/vault"
)

// workspace bundles the opened storage layers behind one Close.
type workspace struct {
	cfg      config.Config
	db       *store.DB
	vault    *vault.Vault
	recorder *recorder.Recorder
}

// openWorkspace loads grandr.yaml and opens the database and vault it
// points at.
func openWorkspace(opts *RootOptions) (*workspace, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load workspace config", err)
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	v, err := vault.Open(cfg.VaultDir)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open vault", err)
	}

	renderer, err := report.NewHTMLRenderer(cfg.ReportsDir)
	if err != nil {
		v.Close()
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open reports dir", err)
	}

	return &workspace{
		cfg:      cfg,
		db:       db,
		vault:    v,
		recorder: recorder.New(db, v, recorder.WithRenderer(renderer)),
	}, nil
}

func (w *workspace) Close() {
	w.vault.Close()
	w.db.Close()
}
