package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/otp"
	"github.com/agjmills/drive/internal/storage"
	"github.com/agjmills/drive/internal/store"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error             string `json:"error"`
	Field             string `json:"field,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
	Restart           bool   `json:"restart,omitempty"` // the caller must request a new code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps domain errors to responses. Anything unrecognised
// is logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *account.ValidationError
		mismatch   *otp.MismatchError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validation.Message, Field: validation.Field})
	case errors.Is(err, account.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already exists. Please choose a different username.")
	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered. Please use a different email or login.")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Username or email already exists")
	case errors.As(err, &mismatch):
		remaining := mismatch.Remaining
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid OTP.", RemainingAttempts: &remaining})
	case errors.Is(err, otp.ErrEmailMismatch):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Email mismatch. Please start again.", Restart: true})
	case errors.Is(err, otp.ErrExpired):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: "OTP expired. Please request a new one.", Restart: true})
	case errors.Is(err, otp.ErrExhausted):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: "Too many failed attempts. Please start again.", Restart: true})
	case errors.Is(err, otp.ErrNoChallenge):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: "No active verification code. Please request a new one.", Restart: true})
	case errors.Is(err, otp.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Password reset token is invalid or has expired.")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Username or password is incorrect")
	case errors.Is(err, account.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, "Registration is disabled")
	case errors.Is(err, account.ErrMailUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Email service needs configuration. Please contact administrator.")
	case errors.Is(err, files.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, files.ErrUserNotFound), errors.Is(err, account.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, files.ErrBroadTarget):
		writeError(w, http.StatusBadRequest, "Invalid file identifier")
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

// bind decodes a JSON body, or a url-encoded/multipart form, into dst.
// Form fields are matched by the struct's json tags.
func bind(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(dst); err != nil {
			return &account.ValidationError{Message: "Invalid request body"}
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return &account.ValidationError{Message: "Invalid form data"}
	}
	fields := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
