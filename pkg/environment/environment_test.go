package environment_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamhq/beam/pkg/environment"
)

func TestNewEnvironmentWithProvidedConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	env, err := environment.NewEnvironment(fs, &environment.Environment{
		DataDir:    "/srv/beam",
		APIHost:    "0.0.0.0",
		APIPort:    "8080",
		WorkerHost: "127.0.0.1",
		WorkerPort: "1234",
	})
	require.NoError(t, err)

	assert.Equal(t, "/srv/beam", env.DataDir)
	assert.Equal(t, filepath.Join("/srv/beam", "temp"), env.TempDir())
	assert.Equal(t, filepath.Join("/srv/beam", "uploads"), env.UploadDir())
	assert.Equal(t, filepath.Join("/srv/beam", "thumbnails"), env.ThumbnailDir())
	assert.Equal(t, filepath.Join("/srv/beam", "beam.db"), env.DatabasePath())
	assert.Equal(t, "0.0.0.0:8080", env.APIAddr())
	assert.Equal(t, "127.0.0.1:1234", env.WorkerAddr())
	assert.Equal(t, "http://127.0.0.1:1234", env.WorkerBaseURL)

	for _, dir := range []string{env.TempDir(), env.UploadDir(), env.ThumbnailDir()} {
		exists, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, exists, dir)
	}
}

func TestWorkerBaseURLOverride(t *testing.T) {
	env, err := environment.NewEnvironment(afero.NewMemMapFs(), &environment.Environment{
		DataDir:       "/srv/beam",
		WorkerBaseURL: "http://jobs.internal:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://jobs.internal:9000", env.WorkerBaseURL)
}

func TestNewEnvironmentFromEnviron(t *testing.T) {
	t.Setenv("BEAM_DATA_DIR", "/var/lib/beam")
	t.Setenv("BEAM_API_PORT", "4000")

	env, err := environment.NewEnvironment(afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/beam", env.DataDir)
	assert.Equal(t, "4000", env.APIPort)
	// Defaults fill the rest.
	assert.Equal(t, "127.0.0.1", env.APIHost)
	assert.Equal(t, "ffmpeg", env.FfmpegBinary)
}
