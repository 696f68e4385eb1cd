package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beamhq/beam/pkg/dispatch"
	"github.com/beamhq/beam/pkg/environment"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/messages"
	"github.com/beamhq/beam/pkg/settings"
	"github.com/beamhq/beam/pkg/upload"
	"github.com/beamhq/beam/pkg/version"
)

// registerWorkerAdmin proxies worker lifecycle and health calls through the
// dispatch client, so administrators only ever talk to the API process.
func registerWorkerAdmin(r gin.IRoutes, client dispatch.WorkerControl) {
	r.GET("/health", func(c *gin.Context) {
		status, err := client.Health(c.Request.Context())
		if err != nil {
			proxyError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	proxy := func(call func(context.Context) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			if err := call(c.Request.Context()); err != nil {
				proxyError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
	}
	r.POST("/start", proxy(client.Start))
	r.POST("/stop", proxy(client.Stop))
	r.POST("/restart", proxy(client.Restart))
	r.POST("/reload-settings", proxy(client.ReloadSettings))
}

// proxyError maps dispatch failures: an unreachable worker is a gateway
// problem, anything else is the worker refusing the request.
func proxyError(c *gin.Context, err error) {
	var upstream *dispatch.UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": messages.ErrJobSystemUnavailable})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
}

// NewServeCommand creates the 'serve' command running the upload API process.
func NewServeCommand(fs afero.Fs, ctx context.Context, env *environment.Environment, mgr *settings.Manager, logger *logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Run the upload API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry := upload.NewMemoryRegistry()
			service := upload.NewService(fs, registry, env.TempDir(), env.UploadDir(), logger)
			jobClient := dispatch.NewClient(env.WorkerBaseURL, logger)
			handler := upload.NewHandler(service, mgr, jobClient, upload.HeaderAuth, logger)

			cfg := mgr.Current()
			reaper := upload.NewReaper(service, jobClient,
				time.Duration(cfg.SessionIdleMinutes)*time.Minute,
				time.Duration(cfg.ReapIntervalMinutes)*time.Minute,
				logger)
			go reaper.Run(ctx)

			gin.SetMode(gin.ReleaseMode)
			router := gin.New()
			router.Use(gin.Recovery())
			router.Use(cors.Default())
			router.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
			})
			api := router.Group("/api")
			handler.Register(api)
			registerWorkerAdmin(api.Group("/admin/worker"), jobClient)

			srv := &http.Server{Addr: env.APIAddr(), Handler: router}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("api server shutdown failed", "error", err)
				}
			}()

			logger.Info("api server listening", "addr", env.APIAddr(), "dataDir", env.DataDir)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("api server stopped")
			return nil
		},
	}
}
