// Package central implements the HTTP API exposed by the identity server:
// accounts, friendships, DM/group conversations, recovery, server discovery,
// and the federation endpoints community servers call into. Routing and
// middleware follow the teacher's internal/api/server.go shape: a chi.Mux
// with a fixed global middleware stack, auth-gated routes grouped under
// authgate.Middleware, and a tier-based rate limiter in front of everything.
package central

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/confide-gg/confide/internal/authgate"
	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/config"
	"github.com/confide-gg/confide/internal/federation"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/media"
	tracing "github.com/confide-gg/confide/internal/middleware"
	"github.com/confide-gg/confide/internal/notifications"
	"github.com/confide-gg/confide/internal/realtime"
	"github.com/confide-gg/confide/internal/relay"
	"github.com/confide-gg/confide/internal/search"
	"github.com/confide-gg/confide/internal/store"
)

// Deps collects everything the Central handlers need. Media, Search, Push,
// and Relay are optional and nil-guarded at the call site, mirroring the
// teacher's s.Media != nil / s.Notifications != nil conditional route
// registration; every other field is used without a nil check.
type Deps struct {
	Store      *store.Central
	Cache      *cache.Cache
	Bus        *bus.Bus
	Subs       *realtime.SubscriptionManager
	Limiter    *realtime.ConnectionLimiter
	Dispatcher *gateway.Dispatcher
	Verifier   *federation.Verifier
	Media      *media.Store
	Search     *search.Index
	Push       *notifications.Pusher
	Relay      *relay.Service
	Config     *config.Config
	Logger     *slog.Logger
}

// NewRouter builds the Central chi.Mux: global middleware, then /api routes,
// then /ws mounted at the top level so cache.TierFromRequest's "/ws" prefix
// match (outside /api) resolves correctly.
func NewRouter(d *Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(tracing.CorrelationID)
	r.Use(middleware.RealIP)
	r.Use(tracing.TracingLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(d.Config.HTTP.CORSOrigins))
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(maxBodySize(1 << 20))
	r.Use(rateLimitMiddleware(d.Cache, cache.TierWebSocketConnect))

	h := &handler{d: d}

	r.Get("/health", h.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)
			r.With(authgate.Middleware(d.Store, h.writeErr)).Post("/logout", h.handleLogout)
			r.With(authgate.Middleware(d.Store, h.writeErr)).Get("/me", h.handleMe)
			r.With(authgate.Middleware(d.Store, h.writeErr)).Get("/keys", h.handleKeys)
		})

		r.Group(func(r chi.Router) {
			r.Use(authgate.Middleware(d.Store, h.writeErr))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.handleListConversations)
				r.Post("/", h.handleCreateConversation)
				r.Post("/dm/{userID}", h.handleCreateDM)
				r.Get("/{conversationID}/members", h.handleConversationMembers)
				r.Get("/{conversationID}/messages", h.handleListMessages)
				r.Post("/{conversationID}/messages", h.handleSendMessage)
				r.Patch("/{conversationID}/messages/{messageID}", h.handleEditMessage)
				r.Delete("/{conversationID}/messages/{messageID}", h.handleDeleteMessage)
				if d.Relay != nil {
					r.Post("/{conversationID}/call/token", h.handleIssueCallToken)
					r.Post("/{conversationID}/call/leave", h.handleLeaveCall)
				}
			})

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/me", h.handleGetSelfProfile)
				r.Put("/me", h.handleUpdateSelfProfile)
				r.Get("/{userID}", h.handleGetProfile)
			})

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", h.handleListFriends)
				r.Post("/{userID}/request", h.handleFriendRequest)
				r.Post("/{userID}/accept", h.handleFriendAccept)
			})

			r.Route("/recovery", func(r chi.Router) {
				r.Post("/setup", h.handleRecoverySetup)
				r.Get("/status", h.handleRecoveryStatus)
				r.Post("/data", h.handleRecoveryData)
			})

			r.Route("/keys", func(r chi.Router) {
				r.Post("/prekeys", h.handleUploadPrekeys)
				r.Post("/prekeys/claim/{userID}", h.handleClaimPrekeys)
				r.Post("/exchange/{userID}", h.handleSendKeyExchange)
				r.Get("/exchange/pending", h.handleDrainKeyExchanges)
			})

			r.Route("/federation", func(r chi.Router) {
				r.Post("/token", h.handleIssueFederationToken)
			})

			r.Route("/push", func(r chi.Router) {
				r.Post("/subscribe", h.handleSubscribePush)
				r.Delete("/subscribe", h.handleUnsubscribePush)
			})

			if d.Media != nil {
				r.Post("/uploads", h.handleUpload)
			}
		})

		// Recovery reset is a credential-recovery path: callers are, by
		// definition, logged out, so it cannot sit behind authgate.Middleware.
		r.Post("/recovery/reset", h.handleRecoveryReset)

		r.Get("/uploads/file/*", h.handleGetUpload)

		r.Route("/discovery", func(r chi.Router) {
			r.Get("/servers", h.handleDiscoveryServers)
			r.Get("/search", h.handleDiscoverySearch)
			r.Get("/active", h.handleDiscoveryActive)
		})

		// Server-to-server federation endpoints: authenticated by signature
		// or token, never by a Bearer session, so these stay outside the
		// authgate.Middleware group.
		r.Route("/federation", func(r chi.Router) {
			r.Post("/verify-token", h.handleVerifyToken)
			r.Post("/heartbeat", h.handleHeartbeat)
			r.Post("/register", h.handleRegisterServer)
		})
	})

	// WebSocket upgrade — top-level, matching cache.TierFromRequest's "/ws"
	// prefix check and the teacher's health/metrics-outside-/api pattern.
	r.Get("/ws", gateway.Handler(gateway.NewCore(d.Subs, d.Limiter, d.Bus, d.Dispatcher, d.Logger), d.Store, d.Logger))

	return r
}

func (h *handler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	httpStatus := http.StatusOK
	if err := h.d.Cache.HealthCheck(r.Context()); err != nil {
		status["status"] = "degraded"
		status["cache"] = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		status["cache"] = "healthy"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write([]byte(`{"status":"` + status["status"] + `"}`))
}

// rateLimitMiddleware enforces cache.TierFromRequest's tier against the
// caller's hashed bearer token (or "anon"), failing closed on cache errors
// the way the teacher's own rate limiter refuses the request rather than
// silently letting it through.
func rateLimitMiddleware(c *cache.Cache, wsTier cache.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := cache.TierFromRequest(r.URL.Path, r.Method, wsTier)
			identityHash := cache.HashIdentity(bearerToken(r))

			allowed, err := c.Allow(r.Context(), tier, identityHash, time.Now())
			if err != nil || !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func maxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if r.Body != nil && !strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := false
			for _, o := range origins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				if !(len(origins) == 1 && origins[0] == "*") {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
