package cmd_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/cmd"
	"github.com/beamhq/beam/pkg/environment"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/settings"
)

func testDeps(t *testing.T) (afero.Fs, *environment.Environment, *settings.Manager, *logging.Logger) {
	t.Helper()
	fs := afero.NewMemMapFs()
	logger := logging.NewTestLogger()

	env, err := environment.NewEnvironment(fs, &environment.Environment{DataDir: "/srv/beam"})
	require.NoError(t, err)

	mgr, err := settings.NewManager(logger)
	require.NoError(t, err)
	return fs, env, mgr, logger
}

func TestNewRootCommand(t *testing.T) {
	fs, env, mgr, logger := testDeps(t)

	root := cmd.NewRootCommand(fs, context.Background(), env, mgr, logger)
	require.NotNil(t, root)
	assert.Equal(t, "beam", root.Use)

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "worker")
}

func TestNewServeCommand(t *testing.T) {
	fs, env, mgr, logger := testDeps(t)

	serve := cmd.NewServeCommand(fs, context.Background(), env, mgr, logger)
	require.NotNil(t, serve)
	assert.Equal(t, "serve", serve.Use)
	assert.Contains(t, serve.Aliases, "s")
	assert.NotNil(t, serve.RunE)
}

func TestNewWorkerCommand(t *testing.T) {
	fs, env, mgr, logger := testDeps(t)

	workerCmd := cmd.NewWorkerCommand(fs, context.Background(), env, mgr, logger)
	require.NotNil(t, workerCmd)
	assert.Equal(t, "worker", workerCmd.Use)
	assert.Contains(t, workerCmd.Aliases, "w")
	assert.NotNil(t, workerCmd.RunE)
}
