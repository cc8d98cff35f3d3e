package handlers

import (
	"net/http"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/logger"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
)

// forgotPasswordMessage is returned whether or not the email has an account.
const forgotPasswordMessage = "If an account with this email exists, you will receive an OTP code."

const resetLinkMessage = "If an account with this email exists, you will receive a password reset link."

type AuthHandler struct {
	accounts       *account.Service
	cfg            *config.Config
	sessionManager *scs.SessionManager
}

func NewAuthHandler(accounts *account.Service, cfg *config.Config, sessionManager *scs.SessionManager) *AuthHandler {
	return &AuthHandler{
		accounts:       accounts,
		cfg:            cfg,
		sessionManager: sessionManager,
	}
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// SendRegistrationOTP starts a registration by mailing a code to the email.
func (h *AuthHandler) SendRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.accounts.StartRegistration(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	switch {
	case result.EmailSent:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "OTP sent. Please check your email and enter the 6-digit code.",
			"emailSent": true,
		})
	case result.Code != "":
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Email could not be sent. Use the code below.",
			"emailSent": false,
			"code":      result.Code,
		})
	default:
		writeError(w, http.StatusBadGateway, "Failed to send OTP email. Please try again.")
	}
}

// Register finishes a registration. With registration codes disabled the
// account is created directly.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	in := account.RegisterInput{
		Email:    req.Email,
		OTP:      req.OTP,
		Username: req.Username,
		Password: req.Password,
	}

	var (
		user *models.User
		err  error
	)
	if h.cfg.RegistrationOTP {
		user, err = h.accounts.CompleteRegistration(r.Context(), in)
	} else {
		user, err = h.accounts.Register(r.Context(), in)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auth.ClearTokenCookie(w, h.cfg.IsProduction())
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully. Please login.",
		"user":    newUserResponse(user),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auth.SetTokenCookie(w, result.Token, h.cfg.TokenDuration, h.cfg.IsProduction())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Logged in",
		"token":   result.Token,
		"user":    newUserResponse(result.User),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		logger.Warn("failed to destroy session on logout", "error", err)
	}
	auth.ClearTokenCookie(w, h.cfg.IsProduction())
	writeMessage(w, http.StatusOK, "Logged out")
}

// ForgotPassword issues a reset code. The response never reveals whether
// the email has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.accounts.RequestPasswordOTP(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := map[string]any{"message": forgotPasswordMessage}
	if result.Code != "" {
		body["code"] = result.Code
	}
	writeJSON(w, http.StatusOK, body)
}

// VerifyOTP checks a reset code and sets the new password.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.accounts.ResetPasswordWithOTP(r.Context(), account.ResetOTPInput{
		Email:           req.Email,
		OTP:             req.OTP,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "Password reset successfully. Please login with your new password.")
}

// ForgotPasswordLink emails a reset link. Same generic response as
// ForgotPassword.
func (h *AuthHandler) ForgotPasswordLink(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.accounts.RequestResetLink(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := map[string]any{"message": resetLinkMessage}
	if result.ResetLink != "" {
		body["resetLink"] = result.ResetLink
	}
	writeJSON(w, http.StatusOK, body)
}

// ShowResetPassword reports whether a reset token is still usable.
func (h *AuthHandler) ShowResetPassword(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.CheckResetToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"username": user.Username,
	})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.accounts.ResetPasswordWithToken(r.Context(), chi.URLParam(r, "token"), req.Password, req.ConfirmPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "Password has been reset. Please login with your new password.")
}
