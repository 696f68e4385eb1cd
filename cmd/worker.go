package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beamhq/beam/pkg/environment"
	"github.com/beamhq/beam/pkg/files"
	"github.com/beamhq/beam/pkg/jobs"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/settings"
	"github.com/beamhq/beam/pkg/thumbs"
	"github.com/beamhq/beam/pkg/worker"
)

// NewWorkerCommand creates the 'worker' command running the background job
// process: the polling queue plus its HTTP control server.
func NewWorkerCommand(fs afero.Fs, ctx context.Context, env *environment.Environment, mgr *settings.Manager, logger *logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "worker",
		Aliases: []string{"w"},
		Short:   "Run the background job worker",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := sql.Open("sqlite3", env.DatabasePath()+"?_busy_timeout=5000&_journal_mode=WAL")
			if err != nil {
				return err
			}
			defer db.Close()

			store, err := jobs.NewStore(db)
			if err != nil {
				return err
			}
			metadata, err := files.NewSQLMetadataStore(db)
			if err != nil {
				return err
			}

			generator := thumbs.NewGenerator(fs, env.FfmpegBinary,
				env.UploadDir(), env.ThumbnailDir(), thumbs.DefaultConfig, logger)

			rt := &jobs.Runtime{
				Fs:         fs,
				Thumbnails: generator,
				Metadata:   metadata,
				Logger:     logger,
			}

			cfg := mgr.Current()
			queue := jobs.NewQueue(store, rt, cfg.WorkerConcurrency, time.Second, logger)
			controller := worker.NewController(ctx, queue, mgr, logger)
			if err := controller.Start(); err != nil {
				return err
			}

			server := worker.NewServer(controller, queue, store, mgr, logger)
			srv := &http.Server{Addr: env.WorkerAddr(), Handler: server.Router()}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("worker server shutdown failed", "error", err)
				}
			}()

			logger.Info("worker listening", "addr", env.WorkerAddr(),
				"concurrency", cfg.WorkerConcurrency, "db", env.DatabasePath())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			// Let in-flight jobs finish before exiting.
			if err := controller.Stop(); err != nil && !errors.Is(err, worker.ErrNotRunning) {
				logger.Error("worker stop failed", "error", err)
			}
			logger.Info("worker stopped")
			return nil
		},
	}
}
