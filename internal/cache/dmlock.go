package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dmLockTTL bounds how long a stuck lock (crashed holder) blocks retries.
const dmLockTTL = 5 * time.Second

// LockDMPair resolves the §9 TOCTOU open question: "two concurrent
// POST /conversations/dm requests for the same pair of users could both
// pass the existence check and insert two direct conversations". The
// canonical fix is a unique index on the ordered pair at the database
// layer; this advisory lock is the first line of defense so the common
// case never reaches the database race at all, and the unique constraint
// is the backstop for the rare case where the lock itself is contended
// across two different nodes with independent Redis connections timing
// out at the same instant.
//
// Returns a release function; the caller must call it once the
// conversation has been looked up or created.
func (c *Cache) LockDMPair(ctx context.Context, userA, userB uuid.UUID) (release func(), err error) {
	key := dmPairKey(userA, userB)
	ok, err := c.rdb.SetNX(ctx, key, "1", dmLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring dm pair lock: %w", err)
	}
	if !ok {
		return nil, errDMPairLocked
	}
	return func() {
		c.rdb.Del(context.Background(), key)
	}, nil
}

func dmPairKey(a, b uuid.UUID) string {
	if a.String() > b.String() {
		a, b = b, a
	}
	return fmt.Sprintf("dmlock:%s:%s", a, b)
}

// ErrDMPairLocked is returned by LockDMPair when another request for the
// same pair is already in flight; callers should retry the existence
// lookup rather than treat this as a hard failure.
var ErrDMPairLocked = errors.New("direct conversation creation already in progress")

var errDMPairLocked = ErrDMPairLocked
