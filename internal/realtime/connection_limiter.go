package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/apperr"
)

// MaxConnectionsPerUser and MaxGlobalConnections are the §4.3 admission caps.
const (
	MaxConnectionsPerUser = 5
	MaxGlobalConnections  = 10000
)

// ConnectionLimiter enforces the per-user and whole-node connection caps
// that gate WSCore's admit step. Unlike the original's separate RwLock +
// AtomicUsize (which allows a brief global overshoot between the lockless
// global pre-check and the per-user increment), this implementation holds a
// single mutex across both checks: the global count is re-read after the
// per-user lock is held, so the two counters never drift apart under
// concurrent admission.
type ConnectionLimiter struct {
	mu          sync.Mutex
	perUser     map[uuid.UUID]int
	globalCount int
}

func NewConnectionLimiter() *ConnectionLimiter {
	return &ConnectionLimiter{perUser: make(map[uuid.UUID]int)}
}

// Guard releases one admitted connection slot when the connection ends.
type Guard struct {
	userID  uuid.UUID
	limiter *ConnectionLimiter
}

// Release must be called exactly once, when the connection tears down.
func (g *Guard) Release() {
	g.limiter.remove(g.userID)
}

// TryAdd admits one more connection for userID, or returns a *apperr.Error
// (503) if either cap would be exceeded.
func (l *ConnectionLimiter) TryAdd(userID uuid.UUID) (*Guard, *apperr.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.globalCount >= MaxGlobalConnections {
		return nil, apperr.ServiceUnavailable("server connection limit reached")
	}
	if l.perUser[userID] >= MaxConnectionsPerUser {
		return nil, apperr.ServiceUnavailable("user connection limit reached")
	}

	l.perUser[userID]++
	l.globalCount++

	return &Guard{userID: userID, limiter: l}, nil
}

func (l *ConnectionLimiter) remove(userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.perUser[userID]; n > 0 {
		if n == 1 {
			delete(l.perUser, userID)
		} else {
			l.perUser[userID] = n - 1
		}
	}
	if l.globalCount > 0 {
		l.globalCount--
	}
}

func (l *ConnectionLimiter) GlobalConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalCount
}

func (l *ConnectionLimiter) UserConnections(userID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perUser[userID]
}
