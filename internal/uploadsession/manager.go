// Package uploadsession tracks in-progress chunked uploads. Sessions are
// in-process and ephemeral: a restart forgets them and the client starts
// over. Chunk bytes land in a per-session staging directory, one file per
// chunk index, and are concatenated in index order on completion.
package uploadsession

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinLedgerSaas/internal/checksum"
)

var (
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrAlreadyConsumed  = errors.New("upload session already completed")
	ErrIncompleteUpload = errors.New("not all chunks have been received")
	ErrChunkIndex       = errors.New("chunk index out of range")
	ErrChecksum         = errors.New("assembled file does not match declared checksum")
)

// Session is the state of one chunked transfer. All mutation goes through
// the Manager; handlers only read the exported fields.
type Session struct {
	ID          string
	DatasetID   string
	FileName    string
	FileSize    int64
	TotalChunks int

	fileHash   string
	stagingDir string

	mu           sync.Mutex
	received     map[int]bool
	consumed     bool
	createdAt    time.Time
	lastActivity time.Time
}

// Manager owns every live session. It is constructor-injected into the
// handlers rather than reached through package state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	root     string
}

// NewManager stages chunks under root/chunks and assembled files under
// root/assembled.
func NewManager(root string) (*Manager, error) {
	for _, d := range []string{filepath.Join(root, "chunks"), filepath.Join(root, "assembled")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}
	return &Manager{sessions: make(map[string]*Session), root: root}, nil
}

// Init registers a session and creates its staging directory. fileHash is an
// optional client-declared SHA-256 of the whole file, verified at assembly.
func (m *Manager) Init(fileName string, fileSize int64, totalChunks int, datasetID, fileHash string) (*Session, error) {
	if fileName == "" || fileSize <= 0 || totalChunks <= 0 || datasetID == "" {
		return nil, errors.New("file name, size, chunk count and dataset id are all required")
	}
	s := &Session{
		ID:           uuid.NewString(),
		DatasetID:    datasetID,
		FileName:     fileName,
		FileSize:     fileSize,
		TotalChunks:  totalChunks,
		fileHash:     fileHash,
		received:     make(map[int]bool, totalChunks),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}
	s.stagingDir = filepath.Join(m.root, "chunks", s.ID)
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create session staging dir: %w", err)
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Get returns a live session for progress reads.
func (m *Manager) Get(sessionID string) (*Session, error) {
	return m.lookup(sessionID)
}

// ReceiveChunk stores one chunk. Chunks may arrive in any order; re-sending
// an index overwrites the earlier bytes, so retries are idempotent. The write
// happens under the session lock after the consumed check, so a late retry can
// never rewrite a chunk file while Complete is assembling from it.
func (m *Manager) ReceiveChunk(sessionID string, index int, r io.Reader) (received, total int, err error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return 0, 0, err
	}
	if index < 0 || index >= s.TotalChunks {
		return 0, 0, fmt.Errorf("%w: %d not in [0,%d)", ErrChunkIndex, index, s.TotalChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return 0, 0, ErrAlreadyConsumed
	}

	f, err := os.Create(s.chunkPath(index))
	if err != nil {
		return 0, 0, fmt.Errorf("create chunk file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return 0, 0, fmt.Errorf("write chunk %d: %w", index, err)
	}
	if err := f.Close(); err != nil {
		return 0, 0, fmt.Errorf("close chunk %d: %w", index, err)
	}

	s.received[index] = true
	s.lastActivity = time.Now()
	return len(s.received), s.TotalChunks, nil
}

// ReceivedCount reports progress without touching chunk files.
func (s *Session) ReceivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *Session) chunkPath(index int) string {
	return filepath.Join(s.stagingDir, fmt.Sprintf("chunk_%06d", index))
}

// Complete assembles the chunks into one file and discards the session.
// The consumed flag is checked-and-set under the session lock, so assembly
// runs at most once; a second call gets ErrAlreadyConsumed (or
// ErrSessionNotFound once the first call finished). The session is removed
// whether assembly succeeds or fails.
func (m *Manager) Complete(sessionID string) (string, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.consumed {
		s.mu.Unlock()
		return "", ErrAlreadyConsumed
	}
	if len(s.received) < s.TotalChunks {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %d of %d chunks received", ErrIncompleteUpload, len(s.received), s.TotalChunks)
	}
	s.consumed = true
	s.mu.Unlock()

	defer m.discard(s)

	outPath := filepath.Join(m.root, "assembled", s.ID+filepath.Ext(s.FileName))
	if err := s.assemble(outPath); err != nil {
		os.Remove(outPath)
		return "", err
	}
	if matcher := checksum.NewMatcher(s.fileHash); matcher.Declared() {
		ok, err := matcher.MatchFile(outPath)
		if err != nil {
			os.Remove(outPath)
			return "", fmt.Errorf("verify assembled file: %w", err)
		}
		if !ok {
			os.Remove(outPath)
			return "", ErrChecksum
		}
	}
	return outPath, nil
}

// assemble concatenates chunk files strictly in index order, streaming each
// one so the full file never sits in memory.
func (s *Session) assemble(outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create assembled file: %w", err)
	}
	defer out.Close()
	for i := 0; i < s.TotalChunks; i++ {
		src, err := os.Open(s.chunkPath(i))
		if err != nil {
			return fmt.Errorf("open chunk %d: %w", i, err)
		}
		_, err = io.Copy(out, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("append chunk %d: %w", i, err)
		}
	}
	return out.Sync()
}

// discard forgets the session and removes its staging directory.
func (m *Manager) discard(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	os.RemoveAll(s.stagingDir)
}

// Sweep reclaims sessions idle longer than maxAge: staging files are deleted
// and onReclaim is invoked with each orphaned dataset id so the caller can
// mark the dataset failed. Returns the number of sessions reclaimed.
func (m *Manager) Sweep(maxAge time.Duration, onReclaim func(datasetID string)) int {
	cutoff := time.Now().Add(-maxAge)
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActivity.Before(cutoff) && !s.consumed
		s.mu.Unlock()
		if idle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		os.RemoveAll(s.stagingDir)
		if onReclaim != nil {
			onReclaim(s.DatasetID)
		}
	}
	return len(stale)
}

// Len reports the number of live sessions, for operational logging.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
