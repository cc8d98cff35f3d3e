package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/store"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	users store.CredentialStore
	files *files.Service
}

func NewAdminHandler(users store.CredentialStore, fileService *files.Service) *AdminHandler {
	return &AdminHandler{
		users: users,
		files: fileService,
	}
}

// AdminUser is one row of the admin dashboard.
type AdminUser struct {
	UserResponse
	FileCount int       `json:"fileCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// DashboardResponse holds overall dashboard statistics
type DashboardResponse struct {
	TotalUsers int         `json:"totalUsers"`
	TotalFiles int         `json:"totalFiles"`
	Users      []AdminUser `json:"users"`
}

// ShowDashboard lists every account with its file count.
func (h *AdminHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := DashboardResponse{TotalUsers: len(users), Users: make([]AdminUser, 0, len(users))}
	for i := range users {
		u := &users[i]
		count := 0
		if entries, err := files.ParseList(u.Files); err != nil {
			logger.Warn("cannot decode file list", "user_id", u.ID, "error", err)
		} else {
			count = len(files.Records(entries))
		}
		resp.TotalFiles += count
		resp.Users = append(resp.Users, AdminUser{
			UserResponse: newUserResponse(u),
			FileCount:    count,
			CreatedAt:    u.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseUserID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// DeleteUser removes an account, then best-effort destroys its objects
// (admins cannot delete themselves).
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetClaims(r)

	userID, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if userID == admin.UserID {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	target, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if target == nil {
		writeServiceError(w, r, account.ErrUserNotFound)
		return
	}

	if err := h.users.Delete(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	failed := h.files.DestroyAll(r.Context(), target)
	logger.Info("user deleted", "admin_id", admin.UserID, "user_id", userID, "username", target.Username, "remote_failures", failed)

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":        true,
		"remoteFailures": failed,
	})
}

// DeleteUserFile deletes one file from any user's list.
func (h *AdminHandler) DeleteUserFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req DeleteFileRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	key := strings.TrimSpace(req.Filename)
	if key == "" {
		writeServiceError(w, r, &account.ValidationError{Field: "filename", Message: "Filename is required"})
		return
	}

	result, err := h.files.Delete(r.Context(), userID, key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logger.Info("admin deleted file", "admin_id", auth.GetClaims(r).UserID, "user_id", userID, "key", key, "remote", result.Remote)
	writeJSON(w, http.StatusOK, result)
}
