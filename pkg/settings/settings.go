package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	env "github.com/Netflix/go-env"

	"github.com/beamhq/beam/pkg/logging"
)

// DefaultChunkSize is the fallback upload chunk size (256 KiB). Sessions
// divide by the chunk size, so a non-positive value is never let through.
const DefaultChunkSize int64 = 262144

// Settings are the runtime-tunable service settings shared by both
// processes. A Manager owns the authoritative copy and hands out immutable
// snapshots; Reload re-reads the environment so operators can change values
// without redeploying.
type Settings struct {
	ChunkSize             int64  `env:"BEAM_CHUNK_SIZE,default=262144"`
	MaxFileSize           int64  `env:"BEAM_MAX_FILE_SIZE,default=1073741824"`
	BlacklistedExtensions string `env:"BEAM_BLACKLISTED_EXTENSIONS,default=.exe,.bat,.cmd,.sh,.msi"`
	WorkerConcurrency     int    `env:"BEAM_WORKER_CONCURRENCY,default=2"`
	JobRetentionDays      int    `env:"BEAM_JOB_RETENTION_DAYS,default=7"`
	SessionIdleMinutes    int    `env:"BEAM_SESSION_IDLE_MINUTES,default=60"`
	ReapIntervalMinutes   int    `env:"BEAM_REAP_INTERVAL_MINUTES,default=30"`
}

// Blacklist returns the extension blacklist as a normalized set of
// lower-case, dot-prefixed extensions.
func (s Settings) Blacklist() map[string]struct{} {
	set := make(map[string]struct{})
	for _, ext := range strings.Split(s.BlacklistedExtensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func (s Settings) hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s|%d|%d|%d|%d",
		s.ChunkSize, s.MaxFileSize, s.BlacklistedExtensions,
		s.WorkerConcurrency, s.JobRetentionDays,
		s.SessionIdleMinutes, s.ReapIntervalMinutes)))
	return hex.EncodeToString(sum[:])
}

// Manager guards the current settings and tracks whether a reload actually
// changed anything, so callers can decide whether a restart is warranted.
type Manager struct {
	mu       sync.RWMutex
	current  Settings
	lastHash string
	changed  bool
	logger   *logging.Logger
}

// NewManager loads the initial settings from the environment.
func NewManager(logger *logging.Logger) (*Manager, error) {
	m := &Manager{logger: logger}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.changed = false
	m.mu.Unlock()
	return m, nil
}

// Reload re-reads settings from the environment and records whether they
// differ from the previous snapshot.
func (m *Manager) Reload() error {
	var s Settings
	if _, err := env.UnmarshalFromEnviron(&s); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if s.ChunkSize <= 0 {
		m.logger.Warn("invalid chunk size, falling back to default",
			"chunkSize", s.ChunkSize, "default", DefaultChunkSize)
		s.ChunkSize = DefaultChunkSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h := s.hash()
	m.changed = m.lastHash != "" && m.lastHash != h
	m.lastHash = h
	m.current = s

	m.logger.Info("settings loaded",
		"chunkSize", s.ChunkSize,
		"maxFileSize", s.MaxFileSize,
		"workerConcurrency", s.WorkerConcurrency,
		"changed", m.changed)
	return nil
}

// Current returns a snapshot of the settings.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// HasChanged reports whether the last Reload changed anything. The flag is
// consumed so repeated calls don't trigger repeated restarts.
func (m *Manager) HasChanged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.changed
	m.changed = false
	return changed
}

// Set replaces the current settings directly. Intended for tests.
func (m *Manager) Set(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
	m.lastHash = s.hash()
}
