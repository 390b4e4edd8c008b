package central

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/authgate"
)

// handler groups every Central HTTP endpoint behind Deps so each method can
// reach the store, cache, bus, and optional services without a parameter
// explosion, the way the teacher's Server methods close over its own fields.
type handler struct {
	d *Deps
}

func (h *handler) writeErr(w http.ResponseWriter, err error) {
	apiutil.WriteAppError(w, h.d.Logger, err)
}

// identity resolves the authenticated caller stored by authgate.Middleware.
// Every handler mounted under the authenticated group can assume this
// succeeds; it is only ever nil if a handler were mis-mounted outside that
// group, which is a programming error, not a request-time condition.
func identity(r *http.Request) *authgate.Identity {
	id, _ := authgate.FromContext(r.Context())
	return id
}

func pathUUID(r *http.Request, param string) (uuid.UUID, *apperr.Error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid " + param)
	}
	return id, nil
}
