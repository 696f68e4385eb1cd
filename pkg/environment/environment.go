package environment

import (
	"path/filepath"

	env "github.com/Netflix/go-env"
	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

// Environment holds process-level configuration loaded from the OS or defaults.
// Service settings that can change at runtime live in pkg/settings; everything
// here is fixed for the lifetime of the process.
type Environment struct {
	DataDir       string `env:"BEAM_DATA_DIR"`
	APIHost       string `env:"BEAM_API_HOST,default=127.0.0.1"`
	APIPort       string `env:"BEAM_API_PORT,default=3333"`
	WorkerHost    string `env:"BEAM_WORKER_HOST,default=127.0.0.1"`
	WorkerPort    string `env:"BEAM_WORKER_PORT,default=3335"`
	WorkerBaseURL string `env:"BEAM_WORKER_URL"`
	FfmpegBinary  string `env:"BEAM_FFMPEG,default=ffmpeg"`
	Extras        env.EnvSet
}

// NewEnvironment initializes and returns a new Environment based on provided
// or default settings. Passing a non-nil environ skips reading the OS
// environment entirely, which keeps tests hermetic.
func NewEnvironment(fs afero.Fs, environ *Environment) (*Environment, error) {
	if environ == nil {
		environ = &Environment{}
		es, err := env.UnmarshalFromEnviron(environ)
		if err != nil {
			return nil, err
		}
		environ.Extras = es
	}

	if environ.DataDir == "" {
		environ.DataDir = filepath.Join(xdg.DataHome, "beam")
	}
	if environ.WorkerBaseURL == "" {
		environ.WorkerBaseURL = "http://" + environ.WorkerHost + ":" + environ.WorkerPort
	}

	for _, dir := range []string{environ.TempDir(), environ.UploadDir(), environ.ThumbnailDir()} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return environ, nil
}

// TempDir is the chunk temporary area, partitioned per session id below it.
func (e *Environment) TempDir() string {
	return filepath.Join(e.DataDir, "temp")
}

// UploadDir is the final-artifact storage area.
func (e *Environment) UploadDir() string {
	return filepath.Join(e.DataDir, "uploads")
}

// ThumbnailDir holds generated thumbnail and preview files.
func (e *Environment) ThumbnailDir() string {
	return filepath.Join(e.DataDir, "thumbnails")
}

// DatabasePath is the SQLite database used by the worker process.
func (e *Environment) DatabasePath() string {
	return filepath.Join(e.DataDir, "beam.db")
}

// APIAddr is the listen address of the API process.
func (e *Environment) APIAddr() string {
	return e.APIHost + ":" + e.APIPort
}

// WorkerAddr is the listen address of the worker control server.
func (e *Environment) WorkerAddr() string {
	return e.WorkerHost + ":" + e.WorkerPort
}
