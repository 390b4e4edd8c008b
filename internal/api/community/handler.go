// Package community implements the HTTP API exposed by a community server:
// setup/claim, federated login, channels, roles, members, invites, and
// channel messaging. Routing and middleware mirror internal/api/central's
// chi.Mux shape, which itself follows the teacher's internal/api/server.go.
package community

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/authgate"
	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/config"
	"github.com/confide-gg/confide/internal/federation"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/media"
	"github.com/confide-gg/confide/internal/notifications"
	"github.com/confide-gg/confide/internal/permissions"
	"github.com/confide-gg/confide/internal/realtime"
	"github.com/confide-gg/confide/internal/relay"
	"github.com/confide-gg/confide/internal/store"
)

// Deps collects everything the community handlers need.
type Deps struct {
	Store      *store.Community
	Cache      *cache.Cache
	Bus        *bus.Bus
	Subs       *realtime.SubscriptionManager
	Limiter    *realtime.ConnectionLimiter
	Dispatcher *gateway.Dispatcher
	FedClient  *federation.Client
	Media      *media.Store
	Push       *notifications.Pusher
	Relay      *relay.Service
	Config     *config.Config
	Logger     *slog.Logger
}

type handler struct {
	d *Deps
}

func (h *handler) writeErr(w http.ResponseWriter, err error) {
	apiutil.WriteAppError(w, h.d.Logger, err)
}

func identity(r *http.Request) *authgate.Identity {
	id, _ := authgate.FromContext(r.Context())
	return id
}

func pathUUID(r *http.Request, param string) (uuid.UUID, *apperr.Error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid " + param)
	}
	return id, nil
}

// callerPermissions resolves the requesting member's server-wide effective
// permission bitmask, the gate every mutating handler below checks before
// touching roles, channels, or membership.
func (h *handler) callerPermissions(r *http.Request) (int64, *apperr.Error) {
	serverIdentity, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		return 0, appErr
	}
	member, appErr := h.d.Store.MemberByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		return 0, appErr
	}
	roleIDs, err := h.d.Store.MemberRoleIDs(r.Context(), member.ID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	roles, err := h.d.Store.RolesByIDs(r.Context(), roleIDs)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	isOwner := serverIdentity.OwnerUserID != nil && *serverIdentity.OwnerUserID == member.CentralUserID
	return permissions.Effective(permissions.Member{ID: member.ID, IsOwner: isOwner}, roles), nil
}

// requirePermission rejects with 403 unless the caller's effective
// permissions include required.
func (h *handler) requirePermission(r *http.Request, required int64) *apperr.Error {
	perms, appErr := h.callerPermissions(r)
	if appErr != nil {
		return appErr
	}
	if !permissions.Has(perms, required) {
		return apperr.Forbidden()
	}
	return nil
}
