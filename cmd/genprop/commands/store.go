package commands

import (
	"context"
	"fmt"

	"github.com/genprop/genprop/pkg/config"
	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/results"
	"github.com/genprop/genprop/pkg/stores"
)

// openStore opens and migrates the SQLite database at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store %s: %w", path, err)
	}
	return store, nil
}

// loadRunResults reloads the stored results of a run. An empty treePath uses
// the tree the run was assigned against.
func loadRunResults(ctx context.Context, store stores.Store, runID, treePath string) (*results.Results, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != stores.RunStatusCompleted {
		return nil, engine.NewPermanentError(fmt.Sprintf("run is %s", run.Status), nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(runID)
	}

	if treePath == "" {
		treePath = run.TreePath
	}
	tree, err := config.LoadTree(treePath)
	if err != nil {
		return nil, err
	}

	return store.LoadResults(ctx, runID, tree)
}
