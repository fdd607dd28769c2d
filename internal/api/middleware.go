package api

import (
	"net/http"

	"github.com/parth-sh/backend-api/internal/auth"
)

// LoadSession resolves the session cookie and stores the request-scoped
// session in the context. The account itself is loaded lazily.
func (api *Api) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := api.flows.Sessions().Load(r)
		if err != nil {
			api.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), sess)))
	})
}

// RequireAuth rejects requests without a signed-in account.
func (api *Api) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := api.flows.RequireAuthenticated(r.Context(), sessionFrom(r)); err != nil {
			api.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedOut rejects requests that already have a signed-in account.
func (api *Api) RequireSignedOut(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := api.flows.RequireSignedOut(r.Context(), sessionFrom(r)); err != nil {
			api.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFrom(r *http.Request) *auth.Session {
	if sess, ok := auth.FromContext(r.Context()); ok {
		return sess
	}
	return &auth.Session{}
}
