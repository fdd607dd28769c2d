package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/parth-sh/backend-api/internal/auth"
)

const (
	msgInvalidCredentials   = "Invalid email or password"
	msgInvalidToken         = "Invalid user token, Please try again"
	msgUnauthenticated      = "You must be logged in to do that"
	msgAlreadyAuthenticated = "You must be logged out to do that"
	msgUserNotFound         = "User not found"
	msgInvalidRequestBody   = "Invalid request body"
	msgInternalServerError  = "Internal server error"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorsResponse struct {
	Errors []string `json:"errors"`
}

func (api *Api) respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	if sess := sessionFrom(r); sess.Changed() {
		api.flows.Sessions().WriteCookie(w, sess)
		api.logger.DebugContext(r.Context(), "session cookie updated", "signed_in", sess.AccountID() != "")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (api *Api) respondMessage(w http.ResponseWriter, r *http.Request, message string) {
	api.respondJSON(w, r, http.StatusOK, messageResponse{Message: message})
}

func (api *Api) respondErrors(w http.ResponseWriter, r *http.Request, status int, messages ...string) {
	api.respondJSON(w, r, status, errorsResponse{Errors: messages})
}

// respondError maps auth errors to their HTTP shape. Token failures are
// reported identically whatever the reason.
func (api *Api) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *auth.ValidationError
	var tokenErr *auth.TokenError

	switch {
	case errors.As(err, &validationErr):
		api.respondErrors(w, r, http.StatusUnprocessableEntity, validationErr.Messages...)
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.respondErrors(w, r, http.StatusUnprocessableEntity, msgInvalidCredentials)
	case errors.As(err, &tokenErr):
		api.logger.DebugContext(r.Context(), "token rejected", "reason", tokenErr.Kind.String())
		api.respondErrors(w, r, http.StatusUnauthorized, msgInvalidToken)
	case errors.Is(err, auth.ErrUnauthenticated):
		api.respondErrors(w, r, http.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, auth.ErrAlreadyAuthenticated):
		api.respondErrors(w, r, http.StatusUnauthorized, msgAlreadyAuthenticated)
	case errors.Is(err, auth.ErrAccountNotFound):
		api.respondErrors(w, r, http.StatusNotFound, msgUserNotFound)
	default:
		api.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		api.respondErrors(w, r, http.StatusInternalServerError, msgInternalServerError)
	}
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (api *Api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.respondErrors(w, r, http.StatusBadRequest, msgInvalidRequestBody)
		return false
	}
	return true
}
