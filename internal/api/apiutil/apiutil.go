// Package apiutil provides shared JSON response helpers for the Confide REST
// API. All sub-packages under internal/api import this package instead of
// duplicating writeJSON / writeError / writeNoContent in every handler file.
package apiutil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confide-gg/confide/internal/apperr"
)

// errorEnvelope is the wire shape mandated by §6: {"error": "<message>"}.
type errorEnvelope struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteNoContent writes a 204 No Content response with no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteAppError renders err in the §6/§7 shape. If err is not already an
// *apperr.Error it is treated as an unexpected infrastructure failure and
// logged at Error level with the full cause; the client only ever sees the
// fixed "internal error" string.
func WriteAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err)
	}
	if ae.Status == http.StatusInternalServerError {
		cause := ae.Log
		if cause == nil {
			cause = err
		}
		logger.Error("internal error", slog.String("error", cause.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: ae.Message})
}

// DecodeJSON reads JSON from the request body into dst. On failure it writes
// a 400 error response and returns false so the caller can return early.
func DecodeJSON(w http.ResponseWriter, logger *slog.Logger, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteAppError(w, logger, apperr.BadRequest("invalid request body"))
		return false
	}
	return true
}

// WithTx runs fn inside a database transaction. It begins a transaction,
// calls fn, and commits if fn returns nil. If fn returns an error or panics,
// the transaction is rolled back. Post-commit work (event publishing,
// writing the HTTP response) should happen after WithTx returns nil.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
