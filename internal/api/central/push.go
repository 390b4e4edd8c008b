package central

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
)

type subscribePushRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// handleSubscribePush handles POST /api/push/subscribe: registers (or
// refreshes) a Web Push subscription for the caller.
func (h *handler) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	var req subscribePushRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("endpoint", req.Endpoint); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.RequireNonEmpty("p256dh", req.P256dh); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.RequireNonEmpty("auth", req.Auth); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	err := h.d.Store.UpsertPushSubscription(r.Context(), uuid.New(), identity(r).SubjectID, req.Endpoint, req.P256dh, req.Auth, time.Now())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}

type unsubscribePushRequest struct {
	Endpoint string `json:"endpoint"`
}

// handleUnsubscribePush handles DELETE /api/push/subscribe: drops a single
// subscription, e.g. when a browser reports it as expired.
func (h *handler) handleUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req unsubscribePushRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("endpoint", req.Endpoint); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	if err := h.d.Store.DeletePushSubscription(r.Context(), identity(r).SubjectID, req.Endpoint); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}
