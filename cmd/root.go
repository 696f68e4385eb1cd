package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beamhq/beam/pkg/environment"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/settings"
	"github.com/beamhq/beam/pkg/version"
)

// NewRootCommand returns the root command with all subcommands attached.
func NewRootCommand(fs afero.Fs, ctx context.Context, env *environment.Environment, mgr *settings.Manager, logger *logging.Logger) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "beam",
		Short: "Self-hosted file sharing service.",
		Long: `Beam is a self-hosted file sharing service. Files arrive over a chunked
upload protocol handled by the API process; thumbnail generation and disk
cleanup run in a separate worker process coordinated over HTTP.`,
		Version: fmt.Sprintf("%s %s", version.Version, version.Commit),
	}
	rootCmd.AddCommand(NewServeCommand(fs, ctx, env, mgr, logger))
	rootCmd.AddCommand(NewWorkerCommand(fs, ctx, env, mgr, logger))

	return rootCmd
}
