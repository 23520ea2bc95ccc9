package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dealership_portal/internal/crm"
	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/realtime"
	"dealership_portal/internal/tui"
	"dealership_portal/platform/config"
	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRoot().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var (
		viewMode string
		layout   string
		search   string
		source   string
		assigned string
		stages   []string
		logFile  string
	)

	root := &cobra.Command{
		Use:          "pipeline-board",
		Short:        "Interactive lead pipeline board backed by the CRM",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log, closeLog, err := openLog(cfg.Env, logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			filter := domain.FilterContext{
				Search:           search,
				Source:           source,
				AssignedTo:       assigned,
				ViewMode:         domain.ViewMode(viewMode),
				Layout:           domain.Layout(layout),
				SelectedStageIDs: stages,
			}
			return runBoard(cmd.Context(), cfg, log, filter)
		},
	}

	flags := root.Flags()
	flags.StringVar(&viewMode, "view", string(domain.ViewAll), "view mode: all, mine, unassigned, fresh or converted")
	flags.StringVar(&layout, "layout", string(domain.LayoutPipeline), "layout: pipeline or list")
	flags.StringVar(&search, "search", "", "initial search text")
	flags.StringVar(&source, "source", "", "only leads from this source")
	flags.StringVar(&assigned, "assigned-to", "", "only leads assigned to this user")
	flags.StringSliceVar(&stages, "stage", nil, "limit the board to these stage ids")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file instead of discarding them")

	root.AddCommand(stagesCmd(), notifyCmd())
	return root
}

func runBoard(ctx context.Context, cfg *config.Config, log *logger.Logger, filter domain.FilterContext) error {
	client, err := crm.New(cfg, log)
	if err != nil {
		return err
	}

	bus := events.NewInMemoryBus(log)
	sources, closeSources, err := realtime.SourcesFromConfig(cfg, cfg.GetCRMAPIToken(), log)
	if err != nil {
		return err
	}
	defer closeSources()

	bridgeCtx, cancelBridge := context.WithCancel(ctx)
	defer cancelBridge()
	go func() {
		if err := realtime.NewBridge(bus, log, sources...).Run(bridgeCtx); err != nil {
			log.Error("realtime bridge stopped", "error", err)
		}
	}()

	view := pipeline.NewView(pipeline.Deps{API: client, Bus: bus, Log: log}, pipeline.OptionsFromConfig(cfg))
	defer view.Dispose()

	if err := view.Mount(ctx, filter); err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	return tui.Start(ctx, view)
}

// The board owns the terminal, so logs go to a file or nowhere.
func openLog(env, path string) (*logger.Logger, func(), error) {
	if path == "" {
		return logger.NewWithWriter(env, io.Discard), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewWithWriter(env, f), func() { _ = f.Close() }, nil
}
