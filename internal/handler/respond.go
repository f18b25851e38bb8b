package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	appI18n "github.com/hamiltonprep/mathcoach/internal/i18n"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeError sends {"error": <localized message>}.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "ErrInternal")
}

// decodeJSON reads a size-limited JSON body into T and validates it. An empty body
// decodes as the zero value. On failure it writes a 400 and returns false.
func decodeJSON[T any](h *Handler, w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, h.config.BodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg := appI18n.Td(r.Context(), "ErrInvalidField", map[string]any{"Field": fieldPath(verrs[0])})
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
			return req, false
		}
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
		return req, false
	}
	return req, true
}

// fieldPath returns the JSON path of a failed field without the struct name, e.g. claims[0].confidence.
func fieldPath(fe validator.FieldError) string {
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return path
}
