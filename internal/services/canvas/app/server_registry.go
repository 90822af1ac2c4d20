package server

import (
	"encoding/json"
	"sync"
)

// sessionPeer serializes frame writes to one websocket connection.
type sessionPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newSessionPeer(encoder *json.Encoder) *sessionPeer {
	return &sessionPeer{encoder: encoder}
}

func (p *sessionPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsSession binds one live connection to its verified participant. A
// participant may hold several sessions at once; each registers separately.
type wsSession struct {
	participantID string
	peer          *sessionPeer
}

// sessionRegistry tracks live sessions for presence counts and targeted
// delivery.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[*wsSession]struct{}
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[*wsSession]struct{})}
}

// register adds a session and returns the new online count.
func (r *sessionRegistry) register(sess *wsSession) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess] = struct{}{}
	return len(r.sessions)
}

// unregister removes a session and returns the remaining online count.
// Removing an absent session is a no-op.
func (r *sessionRegistry) unregister(sess *wsSession) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sess)
	return len(r.sessions)
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// all returns a stable copy of the live session set for fan-out. Writes to a
// session that drops mid-broadcast fail on that session alone.
func (r *sessionRegistry) all() []*wsSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*wsSession, 0, len(r.sessions))
	for sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// sessionsFor returns every live session held by one participant.
func (r *sessionRegistry) sessionsFor(participantID string) []*wsSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []*wsSession
	for sess := range r.sessions {
		if sess.participantID == participantID {
			sessions = append(sessions, sess)
		}
	}
	return sessions
}

// byParticipant groups live sessions by participant.
func (r *sessionRegistry) byParticipant() map[string][]*wsSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	grouped := make(map[string][]*wsSession)
	for sess := range r.sessions {
		grouped[sess.participantID] = append(grouped[sess.participantID], sess)
	}
	return grouped
}

// cellLocks hands out one mutex per grid coordinate so placements on the
// same cell serialize through store and broadcast while distinct cells
// proceed in parallel.
type cellLocks struct {
	mu    sync.Mutex
	locks map[[2]int]*sync.Mutex
}

func newCellLocks() *cellLocks {
	return &cellLocks{locks: make(map[[2]int]*sync.Mutex)}
}

func (c *cellLocks) lockFor(x, y int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := [2]int{x, y}
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
