package handler

import (
	"context"
	"errors"
	"net/http"

	appI18n "github.com/hamiltonprep/mathcoach/internal/i18n"
	"github.com/hamiltonprep/mathcoach/internal/llm"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

// generationFailure maps a hint or grading error to a status and a user-facing
// message ID. Model output and prompts never reach the client.
func generationFailure(err error, fallback string) (int, string) {
	var provErr *llm.ProviderError
	var genErr *llm.GenerationError
	switch {
	case errors.Is(err, store.ErrAlreadySubmitted):
		return http.StatusBadRequest, "ErrAlreadySubmitted"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, fallback
	case errors.As(err, &provErr):
		return http.StatusBadGateway, "ErrProviderUnavailable"
	case errors.As(err, &genErr):
		return http.StatusBadGateway, fallback
	default:
		return http.StatusInternalServerError, fallback
	}
}

func appMessage(r *http.Request, msgID string) string {
	return appI18n.T(r.Context(), msgID)
}
