package upload

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/beamhq/beam/pkg/files"
)

// ErrMissingChunk reports an expected chunk file absent at assembly time.
// The registry claims completeness before assembly runs; this guards against
// out-of-band deletion of the temporaries.
var ErrMissingChunk = errors.New("chunk file missing")

// SizeMismatchError reports an assembled file whose size differs from the
// session's declared size. The partial output is left in place for
// inspection rather than silently published.
type SizeMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("assembled file is %d bytes, declared %d", e.Actual, e.Expected)
}

// Artifact describes a finished upload handed off to post-processing.
type Artifact struct {
	FileID       string
	Slug         string
	StoredName   string
	Path         string
	OriginalName string
	Size         int64
	MimeType     string
	DetectedExt  string
}

func newSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Assemble concatenates the session's chunks in index order into the final
// artifact, verifies the total size, sniffs the content type, removes the
// chunk temporaries and retires the session. The session is removed on
// failure as well; a client recovers by starting a new upload.
func (s *Service) Assemble(sessionID string) (*Artifact, error) {
	info, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	slug := newSlug()
	finalPath := files.FinalPath(s.uploadDir, slug, info.Filename)

	if err := s.fs.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	dst, err := s.fs.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact %s: %w", finalPath, err)
	}

	for i := 0; i < info.TotalChunks; i++ {
		chunkPath := s.ChunkPath(sessionID, i)
		src, err := s.fs.Open(chunkPath)
		if err != nil {
			dst.Close()
			_ = s.registry.Remove(sessionID)
			return nil, fmt.Errorf("%w: index %d", ErrMissingChunk, i)
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			dst.Close()
			_ = s.registry.Remove(sessionID)
			return nil, fmt.Errorf("failed to append chunk %d: %w", i, err)
		}
		src.Close()
	}
	if err := dst.Close(); err != nil {
		_ = s.registry.Remove(sessionID)
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}

	stat, err := s.fs.Stat(finalPath)
	if err != nil {
		_ = s.registry.Remove(sessionID)
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if stat.Size() != info.Size {
		_ = s.registry.Remove(sessionID)
		return nil, &SizeMismatchError{Path: finalPath, Expected: info.Size, Actual: stat.Size()}
	}

	mime, detectedExt := s.detectType(finalPath)

	if err := s.fs.RemoveAll(s.ChunkDir(sessionID)); err != nil {
		s.logger.Warn("failed to remove chunk temporaries", "session", sessionID, "error", err)
	}

	if err := s.registry.MarkFinished(sessionID); err != nil {
		return nil, err
	}
	if err := s.registry.Remove(sessionID); err != nil {
		return nil, err
	}

	s.logger.Info("upload assembled", "session", sessionID, "file", finalPath, "size", stat.Size(), "mimeType", mime)

	return &Artifact{
		FileID:       uuid.NewString(),
		Slug:         slug,
		StoredName:   files.StoredName(slug, info.Filename),
		Path:         finalPath,
		OriginalName: info.Filename,
		Size:         stat.Size(),
		MimeType:     mime,
		DetectedExt:  detectedExt,
	}, nil
}

// detectType sniffs the artifact's content type. The declared filename is
// untrusted, so the sniffed type wins. Detection failure degrades to
// application/octet-stream.
func (s *Service) detectType(path string) (string, string) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "application/octet-stream", ""
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream", ""
	}
	return mtype.String(), strings.ToLower(mtype.Extension())
}
