package handler

import (
	"net/http"

	"shortlink/internal/model"
)

type userResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type registerRequest struct {
	Username string `json:"username" validate:"max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"max=72"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword" validate:"max=72"`
}

type changeUsernameRequest struct {
	UserID      string `json:"userId"`
	NewUsername string `json:"newUsername" validate:"max=64"`
}

type changeEmailRequest struct {
	UserID   string `json:"userId"`
	NewEmail string `json:"newEmail" validate:"omitempty,email"`
}

type changePasswordRequest struct {
	UserID      string `json:"userId"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword" validate:"max=72"`
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.Accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "User registered successfully", User: u})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Service.Accounts.Verify(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Login successful", User: u})
}

func (h *Handler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	var req changeUsernameRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.Accounts.ChangeUsername(r.Context(), req.UserID, req.NewUsername)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Username changed successfully", User: u})
}

func (h *Handler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.Accounts.ChangeEmail(r.Context(), req.UserID, req.NewEmail)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Email changed successfully", User: u})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.Accounts.ChangePassword(r.Context(), req.UserID, req.OldPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Password changed successfully", User: u})
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID, err := h.Service.Accounts.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset link sent to your email",
		"userId":  userID,
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Service.Accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful."})
}
