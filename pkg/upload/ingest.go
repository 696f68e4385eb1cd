package upload

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/beamhq/beam/pkg/logging"
)

// ChunkSizeError reports a chunk whose byte length does not match the length
// the session negotiated for that index.
type ChunkSizeError struct {
	Index    int
	Expected int64
	Received int64
}

func (e *ChunkSizeError) Error() string {
	return fmt.Sprintf("chunk %d has %d bytes, expected %d", e.Index, e.Received, e.Expected)
}

// Service owns chunk persistence and assembly for upload sessions. All file
// access goes through the injected afero.Fs.
type Service struct {
	fs        afero.Fs
	registry  Registry
	tempDir   string
	uploadDir string
	logger    *logging.Logger
}

// NewService returns a Service writing chunk temporaries under tempDir and
// assembled artifacts under uploadDir.
func NewService(fs afero.Fs, registry Registry, tempDir, uploadDir string, logger *logging.Logger) *Service {
	return &Service{
		fs:        fs,
		registry:  registry,
		tempDir:   tempDir,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Registry exposes the session registry the service writes through.
func (s *Service) Registry() Registry {
	return s.registry
}

// ChunkDir is the per-session temporary area; sessions never share paths.
func (s *Service) ChunkDir(sessionID string) string {
	return filepath.Join(s.tempDir, sessionID)
}

// ChunkPath locates one persisted chunk, keyed by (session, index).
func (s *Service) ChunkPath(sessionID string, index int) string {
	return filepath.Join(s.ChunkDir(sessionID), "chunk_"+strconv.Itoa(index))
}

// IngestResult is the acknowledgement for one ingested chunk. Artifact is
// set only when this chunk completed the session and assembly succeeded.
type IngestResult struct {
	State    ChunkState
	Session  SessionInfo
	Artifact *Artifact
}

// Ingest validates one chunk against its session, persists it and records it
// in the registry. The disk write happens before the registry update so that
// a crash in between is recovered by the client simply re-sending the chunk.
// When the chunk is the last missing one, assembly runs synchronously.
func (s *Service) Ingest(sessionID string, index int, chunk []byte) (IngestResult, error) {
	info, err := s.registry.Get(sessionID)
	if err != nil {
		return IngestResult{}, err
	}
	if info.Finished {
		return IngestResult{}, ErrSessionFinished
	}
	if index < 0 || index >= info.TotalChunks {
		return IngestResult{}, ErrInvalidChunkIndex
	}

	if expected := info.ExpectedChunkSize(index); int64(len(chunk)) != expected {
		return IngestResult{}, &ChunkSizeError{Index: index, Expected: expected, Received: int64(len(chunk))}
	}

	if err := s.fs.MkdirAll(s.ChunkDir(sessionID), 0o755); err != nil {
		return IngestResult{}, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	// Overwrite any prior write for the same index so a client retry cannot
	// corrupt the chunk.
	if err := afero.WriteFile(s.fs, s.ChunkPath(sessionID, index), chunk, 0o644); err != nil {
		return IngestResult{}, fmt.Errorf("failed to persist chunk %d: %w", index, err)
	}

	state, session, err := s.registry.RecordChunk(sessionID, index)
	if err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{State: state, Session: session}
	if state != Complete {
		return result, nil
	}

	s.logger.Debug("all chunks received, assembling", "session", sessionID, "chunks", session.TotalChunks)

	artifact, err := s.Assemble(sessionID)
	if err != nil {
		return result, err
	}
	result.Artifact = artifact
	result.Session.Finished = true
	return result, nil
}
