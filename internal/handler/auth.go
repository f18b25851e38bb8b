package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

const sessionCookieName = "session"

// bearerToken returns the token from "Authorization: Bearer <token>", or "".
func bearerToken(r *http.Request) string {
	kind, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || kind != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

// requestToken reads the bearer token, falling back to the session cookie.
func requestToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth resolves the bearer token to an active user or responds 401.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "ErrNotAuthenticated")
			return
		}

		authSess, err := h.store.GetAuthSession(token)
		if err != nil {
			h.internalError(w, r, "failed to get auth session", err)
			return
		}
		if authSess == nil {
			writeError(w, r, http.StatusUnauthorized, "ErrNotAuthenticated")
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil {
			h.internalError(w, r, "failed to get user", err)
			return
		}
		if user == nil || !user.Active {
			writeError(w, r, http.StatusUnauthorized, "ErrNotAuthenticated")
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, r, http.StatusUnauthorized, "ErrNotAuthenticated")
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusForbidden, "ErrTeacherRequired")
		})
	}
}

type signInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signUpRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=64,notblank"`
	Password    string         `json:"password" validate:"required,min=8,max=128"`
	DisplayName string         `json:"displayName" validate:"max=100"`
	Role        model.UserRole `json:"role" validate:"omitempty,oneof=STUDENT TEACHER"`
}

type authResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[signInRequest](h, w, r)
	if !ok {
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.internalError(w, r, "failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, r, http.StatusUnauthorized, "ErrInvalidCredentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, r, http.StatusUnauthorized, "ErrInvalidCredentials")
		return
	}
	if !user.Active {
		writeError(w, r, http.StatusForbidden, "ErrAccountDisabled")
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[signUpRequest](h, w, r)
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
	role := req.Role
	if role == "" {
		role = model.UserRoleStudent
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}
	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		h.internalError(w, r, "failed to create user", err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil || user == nil {
		h.internalError(w, r, "failed to load new user", err)
		return
	}

	h.startSession(w, r, user, http.StatusCreated)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *model.User, status int) {
	sess, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		h.internalError(w, r, "failed to create auth session", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user signed in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, status, authResponse{Token: sess.ID, ExpiresAt: sess.ExpiresAt, User: user})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAuthSession(requestToken(r)); err != nil {
		h.internalError(w, r, "failed to delete auth session", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": model.UserFromContext(r.Context())})
}

type personaRequest struct {
	Persona *model.Persona `json:"persona" validate:"omitempty,oneof=COACH QUIZ_MASTER RIVAL"`
}

func (h *Handler) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[personaRequest](h, w, r)
	if !ok {
		return
	}
	user := model.UserFromContext(r.Context())
	if err := h.store.SetUserPersona(user.ID, req.Persona); err != nil {
		h.internalError(w, r, "failed to set persona", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "persona": req.Persona})
}
