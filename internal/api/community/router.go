package community

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/confide-gg/confide/internal/authgate"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/gateway"
	tracing "github.com/confide-gg/confide/internal/middleware"
)

// NewRouter builds the community server's chi.Mux, mirroring the global
// middleware stack internal/api/central.NewRouter uses.
func NewRouter(d *Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(tracing.CorrelationID)
	r.Use(middleware.RealIP)
	r.Use(tracing.TracingLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(d.Config.HTTP.CORSOrigins))
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(rateLimitMiddleware(d.Cache, cache.TierWebSocketConnect))

	h := &handler{d: d}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/setup", func(r chi.Router) {
			r.Get("/status", h.handleSetupStatus)
			r.Post("/claim", h.handleSetupClaim)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.handleLogin)
			r.With(authgate.Middleware(d.Store, h.writeErr)).Post("/logout", h.handleLogout)
			r.With(authgate.Middleware(d.Store, h.writeErr)).Get("/me", h.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(authgate.Middleware(d.Store, h.writeErr))

			r.Route("/server", func(r chi.Router) {
				r.Get("/", h.handleGetServer)
				r.Patch("/", h.handleUpdateServer)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", h.handleListCategories)
				r.Post("/", h.handleCreateCategory)
			})

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", h.handleListChannels)
				r.Post("/", h.handleCreateChannel)
				r.Delete("/{channelID}", h.handleDeleteChannel)
				r.Get("/{channelID}/messages", h.handleListChannelMessages)
				r.Post("/{channelID}/messages", h.handleSendChannelMessage)
				r.Patch("/{channelID}/messages/{messageID}", h.handleEditChannelMessage)
				r.Delete("/{channelID}/messages/{messageID}", h.handleDeleteChannelMessage)
				if d.Relay != nil {
					r.Post("/{channelID}/call/token", h.handleIssueCallToken)
					r.Post("/{channelID}/call/leave", h.handleLeaveCall)
				}
			})

			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.handleListMembers)
				r.Delete("/{memberID}", h.handleKickMember)
				r.Put("/{memberID}/roles/{roleID}", h.handleAssignRole)
				r.Delete("/{memberID}/roles/{roleID}", h.handleUnassignRole)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Get("/", h.handleListRoles)
				r.Post("/", h.handleCreateRole)
				r.Patch("/{roleID}", h.handleUpdateRole)
				r.Delete("/{roleID}", h.handleDeleteRole)
			})

			r.Route("/invites", func(r chi.Router) {
				r.Post("/", h.handleCreateInvite)
				r.Get("/{code}", h.handleGetInvite)
				r.Post("/{code}/redeem", h.handleRedeemInvite)
			})
		})
	})

	r.Get("/ws", gateway.Handler(gateway.NewCore(d.Subs, d.Limiter, d.Bus, d.Dispatcher, d.Logger), d.Store, d.Logger))

	return r
}

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
