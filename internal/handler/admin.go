package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/hamiltonprep/mathcoach/internal/i18n"
	"github.com/hamiltonprep/mathcoach/internal/model"
)

const maxSeedUpload = 10 << 20

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(model.UserRole(r.URL.Query().Get("role")))
	if err != nil {
		h.internalError(w, r, "failed to list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=64,notblank"`
	Password    string         `json:"password" validate:"required,min=8,max=128"`
	DisplayName string         `json:"displayName" validate:"max=100"`
	Role        model.UserRole `json:"role" validate:"required,oneof=STUDENT TEACHER"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[createUserRequest](h, w, r)
	if !ok {
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.internalError(w, r, "failed to get user", err)
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "ErrUsernameTaken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, "failed to hash password", err)
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		h.internalError(w, r, "failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
		return
	}
	if id == model.UserFromContext(r.Context()).ID {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		h.internalError(w, r, "failed to toggle user active", err)
		return
	}
	slog.Info("toggled user active", "id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleUploadSeed imports a problems and moves seed file from the "seed_file" form field.
func (h *Handler) handleUploadSeed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSeedUpload)
	if err := r.ParseMultipartForm(maxSeedUpload); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
		return
	}

	file, header, err := r.FormFile("seed_file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.internalError(w, r, "failed to read seed upload", err)
		return
	}

	res, err := h.store.ImportSeed(header.Filename, data)
	if err != nil {
		slog.Warn("seed upload rejected", "filename", header.Filename, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrSeedInvalid")
		return
	}
	if !res.Imported {
		writeJSON(w, http.StatusOK, map[string]any{"imported": false, "message": appI18n.T(r.Context(), "SeedUnchanged")})
		return
	}

	slog.Info("uploaded seed via admin", "filename", header.Filename, "problems", res.Problems, "moves", res.Moves)
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": true,
		"problems": res.Problems,
		"moves":    res.Moves,
		"message":  appI18n.Tp(r.Context(), "ProblemsImported", res.Problems),
	})
}
