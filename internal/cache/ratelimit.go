package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier is one of the six rate-limit classes from §4.5. Each carries its own
// request budget and fixed window.
type Tier struct {
	name       string
	maxRequests int64
	window     time.Duration
}

var (
	TierAuth             = Tier{"auth", 5, 60 * time.Second}
	TierRecovery         = Tier{"recovery", 3, 60 * time.Second}
	TierWebSocketConnect = Tier{"ws", 10, 60 * time.Second}
	TierRead             = Tier{"read", 300, 60 * time.Second}
	TierWrite            = Tier{"write", 60, 60 * time.Second}
	TierUpload           = Tier{"upload", 10, 3600 * time.Second}
)

// CommunityTierWebSocketConnect is the looser community-server WS connect
// budget from §6 (30/60s vs Central's 10/60s).
var CommunityTierWebSocketConnect = Tier{"ws", 30, 60 * time.Second}

// TierFromRequest classifies a request path+method into a rate-limit tier,
// mirroring the original's from_request dispatch.
func TierFromRequest(path, method string, wsTier Tier) Tier {
	switch {
	case strings.HasPrefix(path, "/api/auth") || strings.HasPrefix(path, "/api/setup"):
		return TierAuth
	case strings.HasPrefix(path, "/api/recovery"):
		return TierRecovery
	case strings.HasPrefix(path, "/ws"):
		return wsTier
	case strings.HasPrefix(path, "/api/uploads"):
		return TierUpload
	case method == http.MethodGet || method == http.MethodHead:
		return TierRead
	default:
		return TierWrite
	}
}

// incrScript atomically increments the window counter and sets its
// expiration on first increment, so a crash between INCR and EXPIRE can
// never leave a key to live forever.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// HashIdentity turns a bearer token into the opaque "user:<sha256-hex>"
// identity used in rate-limit keys, matching §4.5's "never derive the key
// from the raw token". Callers without a token should pass "anon".
func HashIdentity(bearerToken string) string {
	tokenBytes, err := hex.DecodeString(bearerToken)
	if err != nil {
		return "anon"
	}
	sum := sha256.Sum256(tokenBytes)
	return "user:" + hex.EncodeToString(sum[:])
}

// Allow increments the fixed-window counter for (tier, identity) and reports
// whether the request is within budget. Per §4.14, Redis failures fail
// closed: callers should treat a non-nil error as "reject the request".
func (c *Cache) Allow(ctx context.Context, tier Tier, identity string, now time.Time) (bool, error) {
	window := now.Unix() / int64(tier.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", tier.name, identity, window)

	count, err := incrScript.Run(ctx, c.rdb, []string{key}, int64(tier.window.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return count <= tier.maxRequests, nil
}
