// Package upload implements the chunked-upload session protocol: the
// in-memory session registry, chunk ingestion and validation, and the final
// assembly of received chunks into the stored artifact.
package upload

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrSessionFinished reports a chunk sent to a completed session.
	ErrSessionFinished = errors.New("upload session already finished")
	// ErrInvalidChunkIndex reports a chunk index outside [0, totalChunks).
	ErrInvalidChunkIndex = errors.New("invalid chunk index")
)

// ChunkState is the outcome of recording a chunk index on a session.
type ChunkState int

const (
	// StillPending means more chunks are expected.
	StillPending ChunkState = iota
	// AlreadyReceived means this index was recorded before; nothing changed.
	AlreadyReceived
	// Complete means this chunk was the last missing one. The registry
	// reports Complete exactly once per session.
	Complete
)

// SessionInfo is an immutable snapshot of an upload session. Mutation happens
// only through Registry methods; callers never share the live record.
type SessionInfo struct {
	ID             string
	Filename       string
	OwnerID        string
	Size           int64
	ChunkSize      int64
	TotalChunks    int
	ReceivedChunks int
	Finished       bool
	LastActivity   time.Time
}

// ExpectedChunkSize returns the byte length chunk index must carry: the
// negotiated chunk size for every index except the final one, which carries
// the remainder.
func (s SessionInfo) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.Size - s.ChunkSize*int64(s.TotalChunks-1)
	}
	return s.ChunkSize
}

// Registry tracks in-flight upload sessions. Implementations must serialize
// per-session completion checks so that Complete is observed exactly once.
type Registry interface {
	Create(filename string, size, chunkSize int64, ownerID string) SessionInfo
	Get(id string) (SessionInfo, error)
	RecordChunk(id string, index int) (ChunkState, SessionInfo, error)
	Missing(id string) ([]int, error)
	MarkFinished(id string) error
	Remove(id string) error
	Idle(olderThan time.Duration) []SessionInfo
}

type session struct {
	info     SessionInfo
	received map[int]struct{}
}

// MemoryRegistry is the in-process Registry implementation. A single mutex
// guards the table and the per-session received-sets; every operation is a
// handful of map accesses, so finer sharding has not been needed.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Create registers a fresh session and returns its snapshot. totalChunks is
// ceil(size / chunkSize); both values are fixed for the session's lifetime.
func (r *MemoryRegistry) Create(filename string, size, chunkSize int64, ownerID string) SessionInfo {
	totalChunks := int((size + chunkSize - 1) / chunkSize)

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session{
		info: SessionInfo{
			ID:           uuid.NewString(),
			Filename:     filename,
			OwnerID:      ownerID,
			Size:         size,
			ChunkSize:    chunkSize,
			TotalChunks:  totalChunks,
			LastActivity: r.now(),
		},
		received: make(map[int]struct{}),
	}
	r.sessions[s.info.ID] = s
	return s.info
}

// Get returns a snapshot of the session or ErrSessionNotFound.
func (r *MemoryRegistry) Get(id string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return s.info, nil
}

// RecordChunk inserts index into the session's received-set. Re-receiving an
// index is not an error and does not double-count. Complete is returned only
// for the insertion that fills the set, so two callers can never both see it.
func (r *MemoryRegistry) RecordChunk(id string, index int) (ChunkState, SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return StillPending, SessionInfo{}, ErrSessionNotFound
	}
	if s.info.Finished {
		return StillPending, s.info, ErrSessionFinished
	}
	if index < 0 || index >= s.info.TotalChunks {
		return StillPending, s.info, ErrInvalidChunkIndex
	}

	s.info.LastActivity = r.now()

	if _, dup := s.received[index]; dup {
		return AlreadyReceived, s.info, nil
	}

	s.received[index] = struct{}{}
	s.info.ReceivedChunks = len(s.received)

	if len(s.received) == s.info.TotalChunks {
		return Complete, s.info, nil
	}
	return StillPending, s.info, nil
}

// Missing returns the chunk indices not yet received, in ascending order.
func (r *MemoryRegistry) Missing(id string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	missing := []int{}
	for i := 0; i < s.info.TotalChunks; i++ {
		if _, ok := s.received[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

// MarkFinished flips the session's finished flag. The flag is monotonic; a
// finished session accepts no further chunks.
func (r *MemoryRegistry) MarkFinished(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.info.Finished = true
	return nil
}

// Remove drops the session from the registry.
func (r *MemoryRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Idle returns snapshots of unfinished sessions whose last activity is older
// than the given duration. Used by the abandoned-session reaper.
func (r *MemoryRegistry) Idle(olderThan time.Duration) []SessionInfo {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []SessionInfo
	for _, s := range r.sessions {
		if !s.info.Finished && s.info.LastActivity.Before(cutoff) {
			idle = append(idle, s.info)
		}
	}
	return idle
}
