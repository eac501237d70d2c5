package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/genprop/genprop/pkg/config"
	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/results"
	"github.com/genprop/genprop/pkg/stores"
	"github.com/genprop/genprop/pkg/telemetry"
)

// assignOptions holds the flags of the assign command.
type assignOptions struct {
	runFile     string
	tree        string
	samples     []string
	stored      []string
	parallelism int
	metricsAddr string
	view        string
	steps       bool
	watch       bool
	save        bool
}

func newAssignCommand() *cobra.Command {
	opts := &assignOptions{}

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign property results to samples",
		Long: `Assign YES, PARTIAL or NO to every property and step of a tree for each sample.

Samples come from a run file (--config), from evidence files given on the
command line (--sample), or from evidence already imported into the store
(--stored). Each sample's evidence is first reconciled with the tree: entries
for properties the tree does not contain are dropped. Samples are assigned in
parallel and reported together, one column per sample.

With --save, or when the run file names a store, the run and its results are
recorded in the database for later compare and export. --stored samples are
read from the run file's store, or from --store.`,
		Example: `  # Assign the samples listed in a run file
  genprop assign --config run.yaml

  # Assign two InterProScan outputs against a tree
  genprop assign --tree genprop.yaml \
    --sample A=a.tsv,interproscan --sample B=b.tsv,interproscan

  # Show only properties whose results differ between samples
  genprop assign --tree genprop.yaml --stored A --stored B --view differing

  # Reassign whenever the tree definition changes
  genprop assign --config run.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.runFile, "config", "c", "", "run file (YAML, CUE or JSON)")
	cmd.Flags().StringVarP(&opts.tree, "tree", "t", "", "property tree definition")
	cmd.Flags().StringArrayVar(&opts.samples, "sample", nil, "sample evidence as NAME=PATH[,FORMAT] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.stored, "stored", nil, "stored sample to assign (repeatable)")
	cmd.Flags().IntVarP(&opts.parallelism, "parallel", "p", 0, "samples assigned at once (default 4)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.view, "view", string(ViewAll), "rows to show (all, differing, supported)")
	cmd.Flags().BoolVar(&opts.steps, "steps", false, "also show step results")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "reassign when the tree definition changes")
	cmd.Flags().BoolVar(&opts.save, "save", false, "record the run in the store")

	cmd.MarkFlagsMutuallyExclusive("config", "tree")

	return cmd
}

// parseSampleFlag parses NAME=PATH[,FORMAT]. The format defaults to longform.
func parseSampleFlag(s string) (config.SampleConfig, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" || rest == "" {
		return config.SampleConfig{}, fmt.Errorf("invalid --sample %q: expected NAME=PATH[,FORMAT]", s)
	}

	path, format, hasFormat := strings.Cut(rest, ",")
	if !hasFormat {
		format = string(config.EvidenceLongForm)
	}

	return config.SampleConfig{
		Name:     name,
		Evidence: []config.EvidenceFile{{Path: path, Format: config.EvidenceFormat(format)}},
	}, nil
}

// resolveRunConfig builds the run configuration from the run file or flags.
func resolveRunConfig(opts *assignOptions, storeChanged bool) (*config.RunConfig, error) {
	var cfg *config.RunConfig
	if opts.runFile != "" {
		loaded, err := config.LoadRunConfig(opts.runFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		if opts.tree == "" {
			return nil, fmt.Errorf("either --config or --tree is required")
		}
		cfg = &config.RunConfig{Tree: opts.tree}
	}

	for _, s := range opts.samples {
		sample, err := parseSampleFlag(s)
		if err != nil {
			return nil, err
		}
		cfg.Samples = append(cfg.Samples, sample)
	}

	if opts.parallelism > 0 {
		cfg.Parallelism = opts.parallelism
	}
	if opts.save && (cfg.Store == "" || storeChanged) {
		cfg.Store = storePath
	}

	if len(cfg.Samples) == 0 && len(opts.stored) == 0 {
		return nil, fmt.Errorf("no samples: use --sample, --stored or a run file")
	}

	return cfg, nil
}

func runAssign(ctx context.Context, cmd *cobra.Command, opts *assignOptions) error {
	view, err := ParseView(opts.view)
	if err != nil {
		return err
	}

	cfg, err := resolveRunConfig(opts, cmd.Flags().Changed("store"))
	if err != nil {
		return err
	}

	tel, err := newCommandTelemetry(cfg, opts.metricsAddr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()
	if err := tel.StartMetricsServer(); err != nil {
		return err
	}
	ctx = tel.WithContext(ctx)

	caches, err := cfg.LoadCaches()
	if err != nil {
		return err
	}

	var store *stores.SQLiteStore
	if cfg.Store != "" || len(opts.stored) > 0 {
		path := cfg.Store
		if path == "" {
			path = storePath
		}
		store, err = openStore(ctx, path)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, name := range opts.stored {
			cache, err := store.LoadEvidence(ctx, name)
			if err != nil {
				return err
			}
			caches = append(caches, cache)
		}
	}

	a := &assigner{
		cfg:    cfg,
		caches: caches,
		out:    cmd.OutOrStdout(),
		view:   view,
		steps:  opts.steps,
	}
	if cfg.Store != "" {
		a.store = store
	}

	tree, err := config.LoadTree(cfg.Tree)
	if err != nil {
		return err
	}
	if err := a.run(ctx, tree); err != nil {
		return err
	}

	if !opts.watch {
		return nil
	}
	return a.watch(ctx)
}

// newCommandTelemetry builds telemetry from the run configuration and flags.
func newCommandTelemetry(cfg *config.RunConfig, metricsAddr string) (*telemetry.Telemetry, error) {
	tcfg := cfg.TelemetryConfig()
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		tcfg.Metrics.Enabled = true
		tcfg.Metrics.ListenAddress = metricsAddr
	}
	return telemetry.NewTelemetry(tcfg)
}

// assigner runs one assignment per tree version and reports it.
type assigner struct {
	cfg    *config.RunConfig
	caches []*engine.AssignmentCache
	store  stores.Store
	out    io.Writer
	view   View
	steps  bool
}

// run assigns every sample against tree, records the run when a store is
// configured and prints the results.
func (a *assigner) run(ctx context.Context, tree *engine.Tree) error {
	runID := uuid.NewString()
	logger := telemetry.FromContext(ctx).WithRunID(runID)
	ctx = logger.WithContext(ctx)

	builder := results.NewBuilder(tree)
	if a.cfg.Parallelism > 0 {
		builder.Parallelism = a.cfg.Parallelism
	}

	if a.store != nil {
		if err := a.startRun(ctx, runID, tree, builder.Parallelism); err != nil {
			return err
		}
	}

	res, err := builder.Build(ctx, a.caches...)
	if a.store != nil {
		if ferr := a.finishRun(ctx, runID, res, err); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return err
	}

	logger.Zerolog().Info().
		Int("samples", len(res.Samples())).
		Int("properties", res.Properties().Len()).
		Msg("Assignment complete")

	return a.print(res, runID)
}

func (a *assigner) startRun(ctx context.Context, runID string, tree *engine.Tree, parallelism int) error {
	treePath, err := filepath.Abs(a.cfg.Tree)
	if err != nil {
		treePath = a.cfg.Tree
	}

	samples := make([]string, len(a.caches))
	for i, c := range a.caches {
		samples[i] = c.SampleName
	}

	run := &stores.Run{
		ID:           runID,
		TreePath:     treePath,
		RootProperty: tree.RootID(),
		Status:       stores.RunStatusRunning,
		Parallelism:  parallelism,
		Samples:      samples,
	}
	if err := a.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return a.store.AppendEvent(ctx, &stores.Event{
		RunID:   runID,
		Level:   stores.EventLevelInfo,
		Message: fmt.Sprintf("assigning %d samples against %s", len(samples), tree.RootID()),
	})
}

// finishRun stores the results of a successful build and the final status.
// It uses a fresh context so a cancelled run is still recorded.
func (a *assigner) finishRun(ctx context.Context, runID string, res *results.Results, buildErr error) error {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	status := stores.RunStatusCompleted
	var errMsg *string
	if buildErr == nil {
		if err := a.store.SaveResults(storeCtx, runID, res); err != nil {
			buildErr = fmt.Errorf("failed to save results: %w", err)
		}
	}

	var events []*stores.Event
	if buildErr != nil {
		status = stores.RunStatusFailed
		if errors.Is(buildErr, context.Canceled) || engine.ErrorCode(buildErr) == engine.ErrCodeCancelled {
			status = stores.RunStatusCancelled
		}
		msg := buildErr.Error()
		errMsg = &msg
		events = append(events, &stores.Event{RunID: runID, Level: stores.EventLevelError, Message: msg})
	} else {
		events = sampleSummaries(runID, res)
	}

	for _, event := range events {
		if err := a.store.AppendEvent(storeCtx, event); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run event")
		}
	}

	if err := a.store.UpdateRunStatus(storeCtx, runID, status, errMsg); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return buildErr
}

// sampleSummaries returns one event per sample counting its property results.
func sampleSummaries(runID string, res *results.Results) []*stores.Event {
	properties := res.Properties()
	events := make([]*stores.Event, 0, len(res.Samples()))
	for col, sample := range res.Samples() {
		counts := map[engine.Result]int{}
		for _, id := range properties.Keys() {
			counts[properties.Lookup(id)[col]]++
		}
		events = append(events, &stores.Event{
			RunID:  runID,
			Sample: &sample,
			Level:  stores.EventLevelInfo,
			Message: fmt.Sprintf("%d YES, %d PARTIAL, %d NO",
				counts[engine.Yes], counts[engine.Partial], counts[engine.No]),
		})
	}
	return events
}

func (a *assigner) print(res *results.Results, runID string) error {
	if jsonOutput {
		return res.WriteJSON(a.out)
	}

	if a.store != nil {
		fmt.Fprintf(a.out, "Run %s\n\n", runID)
	}
	return renderResults(a.out, res, a.view, a.steps)
}

// watch reassigns every time the tree definition changes, until ctx is done.
func (a *assigner) watch(ctx context.Context) error {
	reloaded := make(chan *engine.Tree, 1)
	watcher := config.NewTreeWatcher(a.cfg.Tree, log.Logger, func(tree *engine.Tree) {
		// Keep only the newest tree if a reassignment is still running
		select {
		case <-reloaded:
		default:
		}
		reloaded <- tree
	})

	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Watch(ctx) }()

	for {
		select {
		case tree := <-reloaded:
			if err := a.run(ctx, tree); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Reassignment failed")
			}
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
