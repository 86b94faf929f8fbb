// Package session tracks the server-assigned identity of one gateway
// connection: the opaque session id, the resume URL, and the last-seen
// event sequence number. A session may outlive brief socket drops; the
// stored state decides whether the next connect replays the event
// stream (resume) or starts over (identify).
package session

import (
	"sync"
	"time"
)

// Session is the mutable per-connection session state. All mutation
// happens on the connection's event loop; the lock guards reads from
// other goroutines (health checks, persistence snapshots).
type Session struct {
	mu         sync.RWMutex
	id         string
	resumeURL  string
	seq        int64
	readyAt    time.Time
	userID     string
	guildCount int
	resumable  bool
}

// Snapshot is the minimal state needed to resume a session after a
// process restart.
type Snapshot struct {
	ID        string `json:"id"`
	ResumeURL string `json:"resume_url"`
	Sequence  int64  `json:"sequence"`
}

// New returns an empty, non-resumable session.
func New() *Session {
	return &Session{}
}

// Populate installs the identity assigned by the session-ready event
// and marks the session resumable.
func (s *Session) Populate(id, resumeURL, userID string, guildCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.resumeURL = resumeURL
	s.userID = userID
	s.guildCount = guildCount
	s.readyAt = time.Now()
	s.resumable = true
}

// Restore rebuilds resumable state from a persisted snapshot.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = snap.ID
	s.resumeURL = snap.ResumeURL
	if snap.Sequence > s.seq {
		s.seq = snap.Sequence
	}
	s.resumable = snap.ID != ""
}

// UpdateSequence advances the last-seen sequence number. Out-of-order
// and duplicate deliveries never move it backwards. Reports whether
// the stored value advanced.
func (s *Session) UpdateSequence(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.seq {
		return false
	}
	s.seq = seq
	return true
}

// CanResume reports whether resumption is currently valid: an assigned
// id, at least one sequenced event seen, and no invalidation since.
func (s *Session) CanResume() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != "" && s.seq > 0 && s.resumable
}

// MarkResumed refreshes the ready timestamp after a successful resume.
func (s *Session) MarkResumed() {
	s.mu.Lock()
	s.readyAt = time.Now()
	s.resumable = true
	s.mu.Unlock()
}

// Invalidate handles an invalid-session notice. When resumable is
// false the identity is fully cleared and the next connect must
// identify from scratch.
func (s *Session) Invalidate(resumable bool) {
	if resumable {
		return
	}
	s.Reset()
}

// Reset clears all session state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	s.resumeURL = ""
	s.seq = 0
	s.readyAt = time.Time{}
	s.userID = ""
	s.guildCount = 0
	s.resumable = false
}

// Snapshot captures the resume state for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ID: s.id, ResumeURL: s.resumeURL, Sequence: s.seq}
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) ResumeURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resumeURL
}

func (s *Session) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) GuildCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guildCount
}

func (s *Session) ReadyAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyAt
}
