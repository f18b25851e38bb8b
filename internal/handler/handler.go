package handler

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/hamiltonprep/mathcoach/internal/llm"
	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

const defaultBodyLimit = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	tutor    llm.Tutor
	config   model.ServerConfig
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, tutor llm.Tutor, cfg model.ServerConfig) *Handler {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	return &Handler{store: s, tutor: tutor, config: cfg, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank validation: %v", err))
	}
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/sign-in", h.handleSignIn)
		if h.config.AllowSignUp {
			r.Post("/auth/sign-up", h.handleSignUp)
		}
		r.Get("/problems", h.handleListProblems)
		r.Get("/problems/{problemID}", h.handleGetProblem)
		r.Get("/moves", h.handleListMoves)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/auth/sign-out", h.handleSignOut)
			r.Get("/auth/me", h.handleMe)
			r.Put("/auth/persona", h.handleSetPersona)
			r.Post("/auth/persona", h.handleSetPersona)

			r.Post("/session/start", h.handleStartSession)
			r.Route("/session/{attemptID}", func(r chi.Router) {
				r.Get("/", h.handleGetSession)
				r.Post("/move-click", h.handleMoveClick)
				r.Post("/hint", h.handleHint)
				r.Post("/hint/stream", h.handleHintStream)
				r.Post("/submit", h.handleSubmit)
				r.Post("/submit/stream", h.handleSubmitStream)
			})

			r.Get("/progress", h.handleProgress)

			r.Get("/teacher/assignments", h.handleListAssignments)
			r.Get("/teacher/assignments/{assignmentID}", h.handleGetAssignment)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher))
				r.Post("/teacher/assignments", h.handleCreateAssignment)
				r.Post("/teacher/assignments/{assignmentID}/problems", h.handleAddAssignmentProblems)
				r.Delete("/teacher/assignments/{assignmentID}", h.handleDeleteAssignment)

				r.Get("/admin/users", h.handleListUsers)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{userID}/toggle-active", h.handleToggleUserActive)
				r.Post("/admin/seed", h.handleUploadSeed)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": h.config.Provider})
}
