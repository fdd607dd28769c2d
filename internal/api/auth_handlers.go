package api

import (
	"net/http"
)

const (
	msgSignedIn        = "Logged in successfully"
	msgSignedOut       = "Logged out successfully"
	msgRegistered      = "Registration successful! Please check your email to confirm your account"
	msgEmailConfirmed  = "Your email has been successfully confirmed. Please proceed to log in"
	msgResetRequested  = "Check your email to reset your password"
	msgResetCompleted  = "Password has been reset successfully, Please login"
	msgPasswordChanged = "Your password has been updated successfully"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type completePasswordResetRequest struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type changePasswordRequest struct {
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	PasswordChallenge    string `json:"password_challenge"`
}

func (api *Api) SignInHandler(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !api.decode(w, r, &req) {
		return
	}

	if _, err := api.flows.SignIn(r.Context(), sessionFrom(r), req.Email, req.Password); err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgSignedIn)
}

func (api *Api) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.flows.SignOut(r.Context(), sessionFrom(r)); err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgSignedOut)
}

func (api *Api) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !api.decode(w, r, &req) {
		return
	}

	_, err := api.flows.Register(r.Context(), sessionFrom(r), req.Email, req.Password, req.PasswordConfirmation)
	if err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgRegistered)
}

func (api *Api) ConfirmEmailHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.flows.ConfirmEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgEmailConfirmed)
}

func (api *Api) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !api.decode(w, r, &req) {
		return
	}

	if err := api.flows.RequestPasswordReset(r.Context(), sessionFrom(r), req.Email); err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgResetRequested)
}

func (api *Api) CompletePasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req completePasswordResetRequest
	if !api.decode(w, r, &req) {
		return
	}

	err := api.flows.CompletePasswordReset(r.Context(), sessionFrom(r), req.Token, req.Password, req.PasswordConfirmation)
	if err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgResetCompleted)
}

func (api *Api) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !api.decode(w, r, &req) {
		return
	}

	err := api.flows.ChangePassword(r.Context(), sessionFrom(r), req.Password, req.PasswordConfirmation, req.PasswordChallenge)
	if err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondMessage(w, r, msgPasswordChanged)
}

func (api *Api) FindByEmailHandler(w http.ResponseWriter, r *http.Request) {
	account, err := api.flows.LookupAccount(r.Context(), sessionFrom(r), r.URL.Query().Get("email"))
	if err != nil {
		api.respondError(w, r, err)
		return
	}
	api.respondJSON(w, r, http.StatusOK, account)
}
